package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/split-checkout/internal/commerce"
	"github.com/noah-isme/split-checkout/internal/ledger"
)

// ErrDestinationNotFound is returned for an out-of-range destination index.
var ErrDestinationNotFound = errors.New("registry: destination not found")

// ErrNegativeQuantity is returned when an allocation quantity is below zero.
var ErrNegativeQuantity = errors.New("registry: quantity must not be negative")

// Allocation routes Quantity units of a line item to the destination that
// holds it. A destination never holds a zero-quantity allocation.
type Allocation struct {
	LineItemID string `json:"lineItemId"`
	Quantity   int64  `json:"quantity"`
}

// Destination is one split-shipping target: an address plus the line-item
// quantities routed to it and its chosen delivery method.
type Destination struct {
	Key              string           `json:"key"`
	Address          commerce.Address `json:"address"`
	Allocations      []Allocation     `json:"allocations"`
	ShippingMethodID string           `json:"shippingMethodId,omitempty"`
	GiftMessage      string           `json:"giftMessage,omitempty"`
	DeliverySelected bool             `json:"deliverySelected"`
}

// AllocationFor returns the quantity this destination routes to a line item.
func (d Destination) AllocationFor(lineItemID string) int64 {
	for _, a := range d.Allocations {
		if a.LineItemID == lineItemID {
			return a.Quantity
		}
	}
	return 0
}

// HasAllocations reports whether the destination routes at least one unit.
func (d Destination) HasAllocations() bool {
	return len(d.Allocations) > 0
}

// Complete reports whether the destination can collapse into a read-only
// preview: at least one allocation, a country on its address and a chosen
// delivery method.
func (d Destination) Complete() bool {
	return d.HasAllocations() &&
		strings.TrimSpace(d.Address.Country) != "" &&
		d.DeliverySelected
}

// Registry is the ordered collection of destinations for one flow. The
// key counter is monotonic for the lifetime of the flow so destination
// keys stay unique even after removals.
type Registry struct {
	Destinations []Destination `json:"destinations"`
	Split        bool          `json:"split"`
	KeyCounter   int           `json:"keyCounter"`
}

// New returns an empty single-address registry.
func New() *Registry {
	return &Registry{}
}

// ToggleSplitMode enters or leaves split mode. Entering seeds one empty
// destination and resets the ledger to full quantities, discarding any
// prior single-address selection. Leaving clears all destinations, which
// restores the implicit full allocation to the single address.
func (r *Registry) ToggleSplitMode(enter bool, led *ledger.Ledger, items []commerce.LineItem) {
	if enter == r.Split {
		return
	}
	r.Split = enter
	r.Destinations = nil
	led.Initialize(items)
	if enter {
		r.AddDestination()
	}
}

// AddDestination appends a new address-less, allocation-less destination
// and returns its index. The generated key uses the monotonic counter.
func (r *Registry) AddDestination() int {
	r.KeyCounter++
	r.Destinations = append(r.Destinations, Destination{
		Key: fmt.Sprintf("address-%d", r.KeyCounter),
	})
	return len(r.Destinations) - 1
}

// Restore replaces the destination list with records reconstructed from a
// cart snapshot and bumps the key counter past any generated keys so
// later additions cannot collide.
func (r *Registry) Restore(dests []Destination) {
	r.Split = len(dests) > 0
	r.Destinations = dests
	for _, d := range dests {
		var n int
		if _, err := fmt.Sscanf(d.Key, "address-%d", &n); err == nil && n > r.KeyCounter {
			r.KeyCounter = n
		}
	}
}

// SetItemAllocation is the central allocation primitive. It computes the
// delta against the destination's current allocation, rejects the change
// when the ledger cannot cover it, and otherwise updates the destination
// and the ledger in lock-step. Quantity zero removes the entry.
func (r *Registry) SetItemAllocation(destIndex int, lineItemID string, quantity int64, led *ledger.Ledger) error {
	if destIndex < 0 || destIndex >= len(r.Destinations) {
		return fmt.Errorf("%w: index %d", ErrDestinationNotFound, destIndex)
	}
	if quantity < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeQuantity, quantity)
	}
	dest := &r.Destinations[destIndex]
	current := dest.AllocationFor(lineItemID)
	delta := quantity - current
	if delta == 0 {
		return nil
	}
	if err := led.Adjust(lineItemID, -delta); err != nil {
		return err
	}

	if quantity == 0 {
		kept := dest.Allocations[:0]
		for _, a := range dest.Allocations {
			if a.LineItemID != lineItemID {
				kept = append(kept, a)
			}
		}
		dest.Allocations = kept
		return nil
	}
	for i := range dest.Allocations {
		if dest.Allocations[i].LineItemID == lineItemID {
			dest.Allocations[i].Quantity = quantity
			return nil
		}
	}
	dest.Allocations = append(dest.Allocations, Allocation{LineItemID: lineItemID, Quantity: quantity})
	return nil
}

// RemoveDestination deletes a destination and releases its claimed
// quantities back to the ledger.
func (r *Registry) RemoveDestination(destIndex int, led *ledger.Ledger) error {
	if destIndex < 0 || destIndex >= len(r.Destinations) {
		return fmt.Errorf("%w: index %d", ErrDestinationNotFound, destIndex)
	}
	for _, a := range r.Destinations[destIndex].Allocations {
		_ = led.Adjust(a.LineItemID, a.Quantity)
	}
	r.Destinations = append(r.Destinations[:destIndex], r.Destinations[destIndex+1:]...)
	return nil
}

// UpdateAddress replaces a destination's address. Allocations are never
// affected by address edits; only explicit item deselection changes
// quantities. The destination key is preserved.
func (r *Registry) UpdateAddress(destIndex int, address commerce.Address) error {
	if destIndex < 0 || destIndex >= len(r.Destinations) {
		return fmt.Errorf("%w: index %d", ErrDestinationNotFound, destIndex)
	}
	address.Key = r.Destinations[destIndex].Key
	r.Destinations[destIndex].Address = address
	return nil
}

// SetShippingMethod records the chosen delivery method for a destination.
func (r *Registry) SetShippingMethod(destIndex int, methodID string) error {
	if destIndex < 0 || destIndex >= len(r.Destinations) {
		return fmt.Errorf("%w: index %d", ErrDestinationNotFound, destIndex)
	}
	r.Destinations[destIndex].ShippingMethodID = methodID
	r.Destinations[destIndex].DeliverySelected = strings.TrimSpace(methodID) != ""
	return nil
}

// SetGiftMessage records a per-destination gift message.
func (r *Registry) SetGiftMessage(destIndex int, message string) error {
	if destIndex < 0 || destIndex >= len(r.Destinations) {
		return fmt.Errorf("%w: index %d", ErrDestinationNotFound, destIndex)
	}
	r.Destinations[destIndex].GiftMessage = message
	return nil
}

// CanSubmit reports whether every destination that routes at least one
// unit also has a delivery method chosen. Destinations without
// allocations are ignored: a freshly added, not-yet-filled address may
// exist transiently but must not block submission.
func (r *Registry) CanSubmit() bool {
	for _, d := range r.Destinations {
		if d.HasAllocations() && !d.DeliverySelected {
			return false
		}
	}
	return true
}

// AllocationTotals sums allocated quantities per line item across all
// destinations.
func (r *Registry) AllocationTotals() map[string]int64 {
	totals := map[string]int64{}
	for _, d := range r.Destinations {
		for _, a := range d.Allocations {
			totals[a.LineItemID] += a.Quantity
		}
	}
	return totals
}

// TargetsFor collects the per-destination shipping targets that reference
// one line item, in destination order. The backend reuses the address key
// as the shipping-method key for these records.
func (r *Registry) TargetsFor(lineItemID string) []commerce.ShippingTarget {
	var targets []commerce.ShippingTarget
	for _, d := range r.Destinations {
		if qty := d.AllocationFor(lineItemID); qty > 0 {
			targets = append(targets, commerce.ShippingTarget{
				AddressKey:        d.Key,
				Quantity:          qty,
				ShippingMethodKey: d.Key,
			})
		}
	}
	return targets
}

// MergeImported folds imported destinations into the registry, matching
// by address key. Existing (cart-native) destinations win over duplicates
// from the file; imported rows without a key get a generated one.
func (r *Registry) MergeImported(addresses []commerce.Address) {
	known := map[string]bool{}
	for _, d := range r.Destinations {
		known[d.Key] = true
	}
	for _, addr := range addresses {
		if addr.Key != "" && known[addr.Key] {
			continue
		}
		if addr.Key == "" {
			r.KeyCounter++
			addr.Key = fmt.Sprintf("address-%d", r.KeyCounter)
		}
		known[addr.Key] = true
		r.Destinations = append(r.Destinations, Destination{Key: addr.Key, Address: addr})
	}
	if len(r.Destinations) > 0 {
		r.Split = true
	}
}
