package models

import (
	"fmt"
	"strings"

	dErrors "medisupply/pkg/domain-errors"
)

// State is an order's lifecycle state. The numeric values are the ids of
// the order_statuses table and are what gets persisted.
type State int

const (
	StateInTransit  State = 1
	StateDelivered  State = 3
	StateCancelled  State = 4
	StateProcessing State = 5
	StatePending    State = 6
)

var stateNames = map[State]string{
	StateInTransit:  "in_transit",
	StateDelivered:  "delivered",
	StateCancelled:  "cancelled",
	StateProcessing: "processing",
	StatePending:    "pending",
}

// forward is the only legal advance path: one step at a time.
var forward = map[State]State{
	StatePending:    StateProcessing,
	StateProcessing: StateInTransit,
	StateInTransit:  StateDelivered,
}

// StateFromID maps a persisted status_id back to a State.
func StateFromID(statusID int) (State, error) {
	s := State(statusID)
	if !s.IsValid() {
		return 0, fmt.Errorf("unknown order status_id %d", statusID)
	}
	return s, nil
}

// ParseState accepts the state name, case-insensitively.
func ParseState(v string) (State, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for s, name := range stateNames {
		if name == v {
			return s, nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeValidation, "unknown order state %q", v)
}

func (s State) IsValid() bool {
	_, ok := stateNames[s]
	return ok
}

func (s State) ID() int { return int(s) }

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// IsTerminal reports whether no transition can leave s.
func (s State) IsTerminal() bool {
	return s == StateDelivered || s == StateCancelled
}

// Next returns the single forward successor of s.
func (s State) Next() (State, bool) {
	n, ok := forward[s]
	return n, ok
}

func (s State) CanAdvanceTo(target State) bool {
	n, ok := forward[s]
	return ok && n == target
}

func (s State) CanCancel() bool {
	return !s.IsTerminal() && s.IsValid()
}

// HasDeliveryEstimate reports whether tracking shows an estimated delivery
// for orders in this state.
func (s State) HasDeliveryEstimate() bool {
	return s == StateProcessing || s == StateInTransit
}

func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid order state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
