package flow

import (
	"github.com/noah-isme/split-checkout/internal/commerce"
	"github.com/noah-isme/split-checkout/internal/registry"
)

// Mode says whether the flow ships everything to one address or splits
// the cart across destinations. It is derived from the cart snapshot on
// every load and never cached as independent mutable state.
type Mode string

const (
	// ModeSingle ships the whole cart to one address.
	ModeSingle Mode = "single"
	// ModeMultiple splits line items across destination addresses.
	ModeMultiple Mode = "multiple"
)

// DetectMode classifies a freshly fetched cart. A cart is in multiple
// mode only when it has more than one shipping entry AND more than one
// item-shipping address AND line-item targets referencing more than one
// distinct address key. No single condition is sufficient on its own: a
// cart can carry two stored addresses while every target still points at
// one of them.
func DetectMode(cart commerce.Cart) Mode {
	if len(cart.Shipping) <= 1 {
		return ModeSingle
	}
	if len(cart.ItemShippingAddresses) <= 1 {
		return ModeSingle
	}
	if distinctTargetKeys(cart) <= 1 {
		return ModeSingle
	}
	return ModeMultiple
}

func distinctTargetKeys(cart commerce.Cart) int {
	keys := map[string]bool{}
	for _, item := range cart.LineItems {
		if item.ShippingDetails == nil {
			continue
		}
		for _, target := range item.ShippingDetails.Targets {
			if target.Quantity > 0 {
				keys[target.AddressKey] = true
			}
		}
	}
	return len(keys)
}

// Reconstruct rebuilds the destination list of an in-progress split from
// the cart snapshot: one destination per item-shipping address, its
// delivery method matched from the shipping entries by address key, and
// every line item's targets distributed into the matching destination.
// Dangling references (a target pointing at a removed address) are
// skipped rather than failing the whole load, and several targets for the
// same line item and address are summed into one allocation.
func Reconstruct(cart commerce.Cart) []registry.Destination {
	dests := make([]registry.Destination, 0, len(cart.ItemShippingAddresses))
	index := map[string]int{}
	for _, addr := range cart.ItemShippingAddresses {
		dest := registry.Destination{
			Key:         addr.Key,
			Address:     addr,
			GiftMessage: addr.AdditionalAddressInfo,
		}
		if entry, ok := cart.ShippingEntryByAddressKey(addr.Key); ok {
			if entry.ShippingInfo != nil && entry.ShippingInfo.ShippingMethod != nil {
				dest.ShippingMethodID = entry.ShippingInfo.ShippingMethod.ID
				dest.DeliverySelected = true
			}
		}
		index[addr.Key] = len(dests)
		dests = append(dests, dest)
	}
	for _, item := range cart.LineItems {
		if item.ShippingDetails == nil {
			continue
		}
		for _, target := range item.ShippingDetails.Targets {
			i, ok := index[target.AddressKey]
			if !ok || target.Quantity <= 0 {
				continue
			}
			merged := false
			for j := range dests[i].Allocations {
				if dests[i].Allocations[j].LineItemID == item.ID {
					dests[i].Allocations[j].Quantity += target.Quantity
					merged = true
					break
				}
			}
			if merged {
				continue
			}
			dests[i].Allocations = append(dests[i].Allocations, registry.Allocation{
				LineItemID: item.ID,
				Quantity:   target.Quantity,
			})
		}
	}
	return dests
}
