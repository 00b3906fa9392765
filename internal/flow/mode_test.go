package flow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/split-checkout/internal/commerce"
)

func splitCart() commerce.Cart {
	return commerce.Cart{
		ID:      "cart-1",
		Version: 7,
		LineItems: []commerce.LineItem{
			{
				ID:       "li-1",
				Quantity: 5,
				ShippingDetails: &commerce.ItemShippingDetails{Targets: []commerce.ShippingTarget{
					{AddressKey: "address-0", Quantity: 2, ShippingMethodKey: "address-0"},
					{AddressKey: "address-1", Quantity: 3, ShippingMethodKey: "address-1"},
				}},
			},
		},
		ItemShippingAddresses: []commerce.Address{
			{Key: "address-0", Country: "DE", AdditionalAddressInfo: "happy birthday"},
			{Key: "address-1", Country: "FR"},
		},
		Shipping: []commerce.ShippingEntry{
			{
				ShippingKey:     "address-0",
				ShippingAddress: commerce.Address{Key: "address-0", Country: "DE"},
				ShippingInfo:    &commerce.ShippingInfo{ShippingMethod: &commerce.ShippingMethodRef{ID: "dhl"}},
			},
			{
				ShippingKey:     "address-1",
				ShippingAddress: commerce.Address{Key: "address-1", Country: "FR"},
			},
		},
	}
}

func TestDetectModeSplitCart(t *testing.T) {
	require.Equal(t, ModeMultiple, DetectMode(splitCart()))
}

func TestDetectModeEmptyCart(t *testing.T) {
	require.Equal(t, ModeSingle, DetectMode(commerce.Cart{ID: "cart-1"}))
}

func TestDetectModeStoredAddressesButOneTarget(t *testing.T) {
	// Two addresses and two shipping entries survive on the cart, but
	// every target points at the same key. Still single.
	cart := splitCart()
	cart.LineItems[0].ShippingDetails.Targets = []commerce.ShippingTarget{
		{AddressKey: "address-0", Quantity: 5, ShippingMethodKey: "address-0"},
	}
	require.Equal(t, ModeSingle, DetectMode(cart))
}

func TestDetectModeSingleShippingEntry(t *testing.T) {
	cart := splitCart()
	cart.Shipping = cart.Shipping[:1]
	require.Equal(t, ModeSingle, DetectMode(cart))
}

func TestDetectModeIgnoresZeroQuantityTargets(t *testing.T) {
	cart := splitCart()
	cart.LineItems[0].ShippingDetails.Targets[1].Quantity = 0
	require.Equal(t, ModeSingle, DetectMode(cart))
}

func TestReconstructBuildsDestinations(t *testing.T) {
	dests := Reconstruct(splitCart())
	require.Len(t, dests, 2)

	require.Equal(t, "address-0", dests[0].Key)
	require.Equal(t, "dhl", dests[0].ShippingMethodID)
	require.True(t, dests[0].DeliverySelected)
	require.Equal(t, "happy birthday", dests[0].GiftMessage)
	require.Equal(t, int64(2), dests[0].AllocationFor("li-1"))

	require.Equal(t, "address-1", dests[1].Key)
	require.False(t, dests[1].DeliverySelected)
	require.Equal(t, int64(3), dests[1].AllocationFor("li-1"))
}

func TestReconstructSumsDuplicateTargets(t *testing.T) {
	cart := splitCart()
	cart.LineItems[0].ShippingDetails.Targets = []commerce.ShippingTarget{
		{AddressKey: "address-0", Quantity: 2, ShippingMethodKey: "address-0"},
		{AddressKey: "address-0", Quantity: 1, ShippingMethodKey: "address-0"},
		{AddressKey: "address-1", Quantity: 2, ShippingMethodKey: "address-1"},
	}
	dests := Reconstruct(cart)
	require.Len(t, dests, 2)
	require.Len(t, dests[0].Allocations, 1, "duplicate targets for one address collapse into one allocation")
	require.Equal(t, int64(3), dests[0].AllocationFor("li-1"))
	require.Equal(t, int64(2), dests[1].AllocationFor("li-1"))
}

func TestReconstructSkipsDanglingTargets(t *testing.T) {
	cart := splitCart()
	cart.LineItems[0].ShippingDetails.Targets = append(
		cart.LineItems[0].ShippingDetails.Targets,
		commerce.ShippingTarget{AddressKey: "address-9", Quantity: 4},
	)
	dests := Reconstruct(cart)
	require.Len(t, dests, 2)
	total := dests[0].AllocationFor("li-1") + dests[1].AllocationFor("li-1")
	require.Equal(t, int64(5), total)
}
