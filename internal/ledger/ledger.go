package ledger

import (
	"errors"
	"fmt"

	"github.com/noah-isme/split-checkout/internal/commerce"
)

// ErrInsufficientRemaining is returned when an adjustment would drive a
// line item's remaining quantity below zero.
var ErrInsufficientRemaining = errors.New("ledger: insufficient remaining quantity")

// ErrUnknownLineItem is returned when an adjustment references a line item
// the ledger was not initialised with.
var ErrUnknownLineItem = errors.New("ledger: unknown line item")

// Ledger tracks, per line item, how many units are still unassigned to any
// destination. It never touches the network; the flow service keeps it in
// lock-step with the allocation registry.
type Ledger struct {
	Remaining map[string]int64 `json:"remaining"`
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{Remaining: map[string]int64{}}
}

// Initialize resets the ledger to each line item's full quantity. Called
// whenever a new cart snapshot is loaded.
func (l *Ledger) Initialize(items []commerce.LineItem) {
	l.Remaining = make(map[string]int64, len(items))
	for _, item := range items {
		l.Remaining[item.ID] = item.Quantity
	}
}

// Adjust applies a signed change to a line item's remaining quantity. A
// negative delta claims units for a destination, a positive delta releases
// them. The change is rejected, not clamped, when the result would be
// negative.
func (l *Ledger) Adjust(lineItemID string, delta int64) error {
	current, ok := l.Remaining[lineItemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLineItem, lineItemID)
	}
	next := current + delta
	if next < 0 {
		return fmt.Errorf("%w: %s has %d remaining, delta %d", ErrInsufficientRemaining, lineItemID, current, delta)
	}
	l.Remaining[lineItemID] = next
	return nil
}

// Recompute rebuilds the ledger from scratch: full quantities minus the
// given allocated totals. It is idempotent and cannot drift from the
// registry's actual state, which makes it the preferred reconciliation
// after destinations are loaded from the backend. Allocated totals for
// line items no longer in the cart are ignored.
func (l *Ledger) Recompute(items []commerce.LineItem, allocated map[string]int64) {
	l.Initialize(items)
	for _, item := range items {
		taken := allocated[item.ID]
		rest := item.Quantity - taken
		if rest < 0 {
			rest = 0
		}
		l.Remaining[item.ID] = rest
	}
}

// Quantity returns the remaining unassigned units for a line item.
func (l *Ledger) Quantity(lineItemID string) int64 {
	return l.Remaining[lineItemID]
}

// HasUnallocated reports whether any line item still has unassigned units.
func (l *Ledger) HasUnallocated() bool {
	for _, rest := range l.Remaining {
		if rest > 0 {
			return true
		}
	}
	return false
}
