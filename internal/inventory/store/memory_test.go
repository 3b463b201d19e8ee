package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medisupply/internal/inventory/models"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/sentinel"
)

func newLot(productID id.ProductID, code string, onHand int) *models.StockLot {
	return &models.StockLot{
		ID:          id.LotID(uuid.New()),
		ProductID:   productID,
		WarehouseID: id.WarehouseID(uuid.New()),
		LotCode:     code,
		OnHand:      onHand,
		ReceivedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestInMemory_SaveLot(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	productID := id.ProductID(uuid.New())
	lot := newLot(productID, "L-1", 5)

	require.NoError(t, s.SaveLot(ctx, lot))
	assert.ErrorIs(t, s.SaveLot(ctx, lot), sentinel.ErrConflict)

	lot.OnHand = 99
	lots, err := s.ListLots(ctx, productID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, 5, lots[0].OnHand, "store keeps its own copy")

	bad := newLot(productID, "L-2", 1)
	bad.Reserved = 2
	assert.ErrorIs(t, s.SaveLot(ctx, bad), sentinel.ErrInvalidState)
}

func TestInMemory_ExecuteReserve(t *testing.T) {
	ctx := context.Background()
	productID := id.ProductID(uuid.New())

	t.Run("persists lots and reservation when fn succeeds", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.SaveLot(ctx, newLot(productID, "L-1", 5)))

		res, err := s.ExecuteReserve(ctx, productID, func(lots []*models.StockLot) (*models.Reservation, error) {
			allocations, err := models.AllocateFIFO(lots, 3)
			if err != nil {
				return nil, err
			}
			return &models.Reservation{
				ID: id.ReservationID(uuid.New()), ProductID: productID, Quantity: 3,
				Status: models.ReservationHeld, Allocations: allocations,
			}, nil
		})
		require.NoError(t, err)

		lots, err := s.ListLots(ctx, productID)
		require.NoError(t, err)
		assert.Equal(t, 3, lots[0].Reserved)

		found, err := s.FindReservation(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationHeld, found.Status)
	})

	t.Run("discards mutations when fn fails", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.SaveLot(ctx, newLot(productID, "L-1", 5)))
		boom := errors.New("boom")

		_, err := s.ExecuteReserve(ctx, productID, func(lots []*models.StockLot) (*models.Reservation, error) {
			lots[0].Reserved = 5
			return nil, boom
		})
		require.ErrorIs(t, err, boom)

		lots, err := s.ListLots(ctx, productID)
		require.NoError(t, err)
		assert.Equal(t, 0, lots[0].Reserved)
	})
}

func TestInMemory_ExecuteReservation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	_, err := s.ExecuteReservation(ctx, id.ReservationID(uuid.New()),
		func(*models.Reservation, map[id.LotID]*models.StockLot) error { return nil })
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = s.FindReservation(ctx, id.ReservationID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
