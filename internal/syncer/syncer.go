package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/split-checkout/internal/commerce"
	"github.com/noah-isme/split-checkout/internal/registry"
)

// ErrNothingToSubmit is returned when a multi-address submission carries
// no destinations with allocations.
var ErrNothingToSubmit = errors.New("syncer: nothing to submit")

// ErrMissingShippingAddress is returned when a single-address submission
// has no shipping address.
var ErrMissingShippingAddress = errors.New("syncer: shipping address required")

// Backend is the slice of the commerce client the protocol needs. Every
// mutating call takes the version returned by the previous call and
// returns the server's replacement cart; the protocol threads the version
// explicitly so the ordering dependency is visible in the signatures.
type Backend interface {
	SetShippingAddress(ctx context.Context, cartID string, version int64, address commerce.Address) (commerce.Cart, error)
	SetBillingAddress(ctx context.Context, cartID string, version int64, address commerce.Address) (commerce.Cart, error)
	SetShippingMethod(ctx context.Context, cartID string, version int64, assignment commerce.MethodAssignment) (commerce.Cart, error)
	AddItemShippingAddresses(ctx context.Context, cartID string, version int64, addresses []commerce.Address) (commerce.Cart, error)
	UpdateItemShippingAddresses(ctx context.Context, cartID string, version int64, addresses []commerce.Address) (commerce.Cart, error)
	AddShippingMethods(ctx context.Context, cartID string, version int64, methods []commerce.MethodAssignment) (commerce.Cart, error)
	SetLineItemShippingTargets(ctx context.Context, cartID string, version int64, lineItemID string, targets []commerce.ShippingTarget) (commerce.Cart, error)
}

// StepError tags a protocol failure with the step that raised it. Earlier
// steps have already been applied: the backend offers no transaction, so
// a partially-applied submission is surfaced, not rolled back.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("syncer: step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// SingleSubmission describes a single-address checkout.
type SingleSubmission struct {
	Shipping         commerce.Address
	Billing          *commerce.Address
	ShippingMethodID string
}

// Service publishes a finished allocation to the commerce backend. Calls
// are awaited strictly sequentially; step N+1 is issued against the
// version returned by step N because the backend rejects stale-version
// writes. There is no automatic retry and no rollback.
type Service struct {
	Client Backend
	Log    zerolog.Logger
}

// SubmitSingle pushes a single-address checkout: shipping address, then
// billing when it differs, then the delivery method when one was chosen,
// then one full-quantity target per line item.
func (s *Service) SubmitSingle(ctx context.Context, cart commerce.Cart, sub SingleSubmission) (commerce.Cart, error) {
	if s == nil || s.Client == nil {
		return commerce.Cart{}, errors.New("syncer: service not configured")
	}
	if strings.TrimSpace(sub.Shipping.Country) == "" {
		return cart, ErrMissingShippingAddress
	}
	shipping := sub.Shipping
	if shipping.Key == "" {
		shipping.Key = "shipping-address"
	}

	current, err := s.Client.SetShippingAddress(ctx, cart.ID, cart.Version, shipping)
	if err != nil {
		return cart, &StepError{Step: "set-shipping-address", Err: err}
	}
	if sub.Billing != nil && !addressEqual(*sub.Billing, sub.Shipping) {
		current, err = s.Client.SetBillingAddress(ctx, current.ID, current.Version, *sub.Billing)
		if err != nil {
			return current, &StepError{Step: "set-billing-address", Err: err}
		}
	}
	if sub.ShippingMethodID != "" {
		current, err = s.Client.SetShippingMethod(ctx, current.ID, current.Version, commerce.MethodAssignment{
			ShippingKey:      shipping.Key,
			ShippingMethodID: sub.ShippingMethodID,
			ShippingAddress:  shipping,
		})
		if err != nil {
			return current, &StepError{Step: "set-shipping-method", Err: err}
		}
	}
	for _, item := range cart.LineItems {
		targets := []commerce.ShippingTarget{{AddressKey: shipping.Key, Quantity: item.Quantity}}
		current, err = s.Client.SetLineItemShippingTargets(ctx, current.ID, current.Version, item.ID, targets)
		if err != nil {
			return current, &StepError{Step: "set-line-item-targets", Err: err}
		}
	}
	s.Log.Info().Str("cart_id", cart.ID).Str("mode", "single").Int64("version", current.Version).Msg("submission_synced")
	return current, nil
}

// SubmitMulti pushes a multi-address allocation: destinations the cart
// does not know yet are registered in one add call, destinations already
// on the cart are refreshed in one update call so address and
// gift-message edits land on resumed splits, then every chosen delivery
// method in one call, then one targets call per line item. Line items
// with no targets are skipped entirely.
func (s *Service) SubmitMulti(ctx context.Context, cart commerce.Cart, reg *registry.Registry) (commerce.Cart, error) {
	if s == nil || s.Client == nil {
		return commerce.Cart{}, errors.New("syncer: service not configured")
	}
	addresses := make([]commerce.Address, 0, len(reg.Destinations))
	methods := make([]commerce.MethodAssignment, 0, len(reg.Destinations))
	for _, dest := range reg.Destinations {
		if !dest.HasAllocations() {
			continue
		}
		addr := dest.Address
		addr.Key = dest.Key
		if dest.GiftMessage != "" {
			addr.AdditionalAddressInfo = dest.GiftMessage
		}
		addresses = append(addresses, addr)
		if dest.ShippingMethodID != "" {
			methods = append(methods, commerce.MethodAssignment{
				ShippingKey:      dest.Key,
				ShippingMethodID: dest.ShippingMethodID,
				ShippingAddress:  addr,
			})
		}
	}
	if len(addresses) == 0 {
		return cart, ErrNothingToSubmit
	}

	registered := map[string]bool{}
	for _, addr := range cart.ItemShippingAddresses {
		registered[addr.Key] = true
	}
	var added, updated []commerce.Address
	for _, addr := range addresses {
		if registered[addr.Key] {
			updated = append(updated, addr)
		} else {
			added = append(added, addr)
		}
	}

	current := cart
	var err error
	if len(added) > 0 {
		current, err = s.Client.AddItemShippingAddresses(ctx, current.ID, current.Version, added)
		if err != nil {
			return cart, &StepError{Step: "add-item-shipping-addresses", Err: err}
		}
	}
	if len(updated) > 0 {
		current, err = s.Client.UpdateItemShippingAddresses(ctx, current.ID, current.Version, updated)
		if err != nil {
			return current, &StepError{Step: "update-item-shipping-addresses", Err: err}
		}
	}
	if len(methods) > 0 {
		current, err = s.Client.AddShippingMethods(ctx, current.ID, current.Version, methods)
		if err != nil {
			return current, &StepError{Step: "add-shipping-methods", Err: err}
		}
	}
	for _, item := range cart.LineItems {
		targets := reg.TargetsFor(item.ID)
		if len(targets) == 0 {
			continue
		}
		current, err = s.Client.SetLineItemShippingTargets(ctx, current.ID, current.Version, item.ID, targets)
		if err != nil {
			return current, &StepError{Step: "set-line-item-targets", Err: err}
		}
	}
	s.Log.Info().Str("cart_id", cart.ID).Str("mode", "multiple").Int("destinations", len(addresses)).Int64("version", current.Version).Msg("submission_synced")
	return current, nil
}

func addressEqual(a, b commerce.Address) bool {
	a.Key, b.Key = "", ""
	return a == b
}
