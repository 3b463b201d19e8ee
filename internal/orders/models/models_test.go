package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "medisupply/pkg/domain"
	dErrors "medisupply/pkg/domain-errors"
	"medisupply/pkg/testutil"
)

var now = time.Date(2025, 5, 10, 14, 30, 0, 0, time.UTC)

func line(qty int, unit string) OrderLine {
	return OrderLine{ProductID: id.ProductID(uuid.New()), Quantity: qty, UnitValue: decimal.RequireFromString(unit)}
}

func newPending(t *testing.T) *Order {
	t.Helper()
	o, _, err := NewOrder(id.OrderID(uuid.New()), id.ClientID(uuid.New()), id.SellerID(uuid.New()),
		[]OrderLine{line(1, "1.00")}, now)
	require.NoError(t, err)
	return o
}

func TestNewOrder(t *testing.T) {
	testutil.Given(t, "lines of 100 × 8.50 and 10 × 4.99", func(t *testing.T) {
		o, created, err := NewOrder(id.OrderID(uuid.New()), id.ClientID(uuid.New()), id.SellerID(uuid.New()),
			[]OrderLine{line(100, "8.50"), line(10, "4.99")}, now)
		require.NoError(t, err)

		testutil.Then(t, "the total is 899.90", func(t *testing.T) {
			assert.Equal(t, "899.90", o.TotalValue.StringFixed(2))
		})
		testutil.Then(t, "the order starts pending with numbered lines", func(t *testing.T) {
			assert.Equal(t, StatePending, o.State)
			assert.Equal(t, 1, o.Lines[0].LineNo)
			assert.Equal(t, 2, o.Lines[1].LineNo)
			assert.Nil(t, created.From)
			assert.Equal(t, StatePending, created.To)
		})
	})

	testutil.Given(t, "a non-positive quantity", func(t *testing.T) {
		_, _, err := NewOrder(id.OrderID(uuid.New()), id.ClientID(uuid.New()), id.SellerID(uuid.New()),
			[]OrderLine{line(0, "1.00")}, now)
		testutil.Then(t, "creation fails validation", func(t *testing.T) {
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	})

	testutil.Given(t, "no lines", func(t *testing.T) {
		_, _, err := NewOrder(id.OrderID(uuid.New()), id.ClientID(uuid.New()), id.SellerID(uuid.New()), nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from   State
		to     State
		legal  bool
		cancel bool
	}{
		{StatePending, StateProcessing, true, true},
		{StateProcessing, StateInTransit, true, true},
		{StateInTransit, StateDelivered, true, true},
		{StatePending, StateInTransit, false, true},
		{StatePending, StateDelivered, false, true},
		{StateProcessing, StatePending, false, true},
		{StateDelivered, StateCancelled, false, false},
		{StateCancelled, StatePending, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			o := newPending(t)
			o.State = tt.from

			err := o.CanAdvance(tt.to)
			if tt.legal {
				assert.NoError(t, err)
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
			}
			assert.Equal(t, tt.cancel, o.CanCancel() == nil)
		})
	}
}

func TestTerminalRejectsEveryTarget(t *testing.T) {
	for _, terminal := range []State{StateDelivered, StateCancelled} {
		for _, target := range []State{StatePending, StateProcessing, StateInTransit, StateDelivered, StateCancelled, State(99)} {
			t.Run(terminal.String()+"->"+target.String(), func(t *testing.T) {
				o := newPending(t)
				o.State = terminal

				err := o.CanAdvance(target)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
			})
		}
	}

	o := newPending(t)
	err := o.CanAdvance(State(99))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "unknown target from a live state is a validation error")
}

func TestOrderJSON(t *testing.T) {
	o, _, err := NewOrder(id.OrderID(uuid.New()), id.ClientID(uuid.New()), id.SellerID(uuid.New()),
		[]OrderLine{line(100, "8.50"), line(10, "4.99")}, now)
	require.NoError(t, err)

	raw, err := json.Marshal(o)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "899.90", body["total_value"])
	assert.Equal(t, "pending", body["state"])
	lines, ok := body["lines"].([]any)
	require.True(t, ok)
	require.Len(t, lines, 2)
	assert.Equal(t, "8.50", lines[0].(map[string]any)["unit_value"])
	assert.Equal(t, float64(100), lines[0].(map[string]any)["quantity"])

	var decoded Order
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, o.TotalValue.Equal(decoded.TotalValue), "fixed rendering still decodes")
}

func TestApplyTransition(t *testing.T) {
	o := newPending(t)
	later := now.Add(time.Hour)

	tr := o.ApplyTransition(StateProcessing, later, "picked")

	assert.Equal(t, StateProcessing, o.State)
	assert.Equal(t, later, o.LastUpdatedAt)
	require.NotNil(t, tr.From)
	assert.Equal(t, StatePending, *tr.From)
	assert.Equal(t, StateProcessing, tr.To)
}

func TestStateCodec(t *testing.T) {
	for s := range stateNames {
		parsed, err := StateFromID(s.ID())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := StateFromID(2)
	assert.Error(t, err)

	raw, err := json.Marshal(StateInTransit)
	require.NoError(t, err)
	assert.JSONEq(t, `"in_transit"`, string(raw))

	var s State
	require.NoError(t, json.Unmarshal([]byte(`"Delivered"`), &s))
	assert.Equal(t, StateDelivered, s)
}

func TestTrack(t *testing.T) {
	eta := now.Add(48 * time.Hour)
	older := newPending(t)
	older.State = StateProcessing
	older.LastUpdatedAt = now.Add(-time.Hour)
	newer := newPending(t)
	newer.State = StateInTransit
	newer.EstimatedDelivery = &eta
	delivered := newPending(t)
	delivered.State = StateDelivered
	delivered.EstimatedDelivery = &eta
	delivered.LastUpdatedAt = now.Add(-2 * time.Hour)

	tracked := Track([]*Order{older, delivered, newer})

	require.Len(t, tracked, 3)
	assert.Equal(t, newer.ID, tracked[0].OrderID, "most recently updated first")
	require.NotNil(t, tracked[0].EstimatedDelivery)
	assert.Equal(t, "2025-05-12 14:30", *tracked[0].EstimatedDelivery)

	assert.Equal(t, older.ID, tracked[1].OrderID)
	require.NotNil(t, tracked[1].EstimatedDelivery)
	assert.Equal(t, DeliveryPendingScheduling, *tracked[1].EstimatedDelivery)

	assert.Equal(t, delivered.ID, tracked[2].OrderID)
	assert.Nil(t, tracked[2].EstimatedDelivery, "delivered orders carry no estimate")
	assert.Equal(t, 3, tracked[2].StatusID)
}
