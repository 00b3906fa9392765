package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/split-checkout/internal/commerce"
	"github.com/noah-isme/split-checkout/internal/ledger"
	"github.com/noah-isme/split-checkout/internal/obs"
	"github.com/noah-isme/split-checkout/internal/registry"
	"github.com/noah-isme/split-checkout/internal/session"
	"github.com/noah-isme/split-checkout/internal/syncer"
	"github.com/noah-isme/split-checkout/internal/wizard"
)

// ErrSubmitInFlight is returned when a submission for the session is
// already running. The source only guarded this with a loading flag; the
// lock makes the re-entrant submit a hard rejection.
var ErrSubmitInFlight = errors.New("flow: submission already in flight")

// ErrNotSubmittable is returned when the allocation cannot be published
// yet: units remain unallocated or a destination with allocations still
// lacks a delivery method.
var ErrNotSubmittable = errors.New("flow: allocation not submittable")

// ErrMissingCountry is returned when a destination expected to submit has
// no country on its address.
var ErrMissingCountry = errors.New("flow: destination address has no country")

// ErrInvalidAddress wraps address validation failures.
var ErrInvalidAddress = errors.New("flow: invalid address")

// CartSource fetches cart snapshots from the commerce backend.
type CartSource interface {
	GetCart(ctx context.Context, cartID string) (commerce.Cart, error)
}

// SingleSelection holds the single-address fields seeded from the cart
// and edited by the shopper outside split mode.
type SingleSelection struct {
	Shipping         *commerce.Address `json:"shipping,omitempty"`
	Billing          *commerce.Address `json:"billing,omitempty"`
	ShippingMethodID string            `json:"shippingMethodId,omitempty"`
}

// State is one shopper's flow session. Registry, ledger and wizard are
// mutated in lock-step by Dispatch and serialised as a unit; the state is
// re-derived from the latest cart snapshot whenever the cart changes
// rather than merged back by diffing.
type State struct {
	ID        string            `json:"id"`
	CartID    string            `json:"cartId"`
	Cart      commerce.Cart     `json:"cart"`
	Mode      Mode              `json:"mode"`
	Wizard    wizard.Controller `json:"wizard"`
	Registry  registry.Registry `json:"registry"`
	Ledger    ledger.Ledger     `json:"ledger"`
	Single    SingleSelection   `json:"single"`
	Submitted bool              `json:"submitted"`
}

// CanSubmit reports whether the current allocation may be published.
func (st *State) CanSubmit() bool {
	if st.Registry.Split {
		return st.Registry.CanSubmit() && !st.Ledger.HasUnallocated()
	}
	return st.Single.Shipping != nil
}

// Service drives the split-shipping flow: it loads carts, applies wizard
// commands and publishes finished allocations.
type Service struct {
	Carts         CartSource
	Sessions      *session.Store
	Sync          *syncer.Service
	Validate      *validator.Validate
	UploadEnabled bool
	SubmitLockTTL time.Duration
	Log           zerolog.Logger
}

// Start fetches the cart and creates a fresh session for it. The mode
// selector runs here and nowhere else: single-address fields are seeded
// from the cart, an in-progress split is reconstructed, and the ledger is
// recomputed to match.
func (s *Service) Start(ctx context.Context, cartID string) (State, error) {
	if s == nil || s.Carts == nil || s.Sessions == nil {
		return State{}, errors.New("flow: service not configured")
	}
	cart, err := s.Carts.GetCart(ctx, cartID)
	if err != nil {
		return State{}, fmt.Errorf("flow: load cart: %w", err)
	}
	st := State{ID: uuid.NewString(), CartID: cart.ID}
	s.hydrate(&st, cart)
	if err := s.Sessions.Save(ctx, st.ID, &st); err != nil {
		return State{}, err
	}
	s.Log.Info().
		Str("session_id", st.ID).
		Str("cart_id", cart.ID).
		Str("mode", string(st.Mode)).
		Str("step", string(st.Wizard.Step)).
		Msg("flow_started")
	return st, nil
}

// hydrate re-derives the whole flow state from a cart snapshot.
func (s *Service) hydrate(st *State, cart commerce.Cart) {
	st.Cart = cart
	st.Mode = DetectMode(cart)

	st.Single = SingleSelection{}
	if cart.ShippingAddress != nil {
		addr := *cart.ShippingAddress
		st.Single.Shipping = &addr
	}
	if cart.BillingAddress != nil {
		addr := *cart.BillingAddress
		st.Single.Billing = &addr
	}

	st.Registry = registry.Registry{}
	st.Ledger = ledger.Ledger{}
	if st.Mode == ModeMultiple {
		st.Registry.Restore(Reconstruct(cart))
	}
	st.Ledger.Recompute(cart.LineItems, st.Registry.AllocationTotals())

	st.Wizard = wizard.Controller{
		Step:          wizard.InitialStep(len(cart.ItemShippingAddresses) > 0, s.UploadEnabled),
		UploadEnabled: s.UploadEnabled,
	}
}

// Get loads an existing session.
func (s *Service) Get(ctx context.Context, sessionID string) (State, error) {
	var st State
	if err := s.Sessions.Load(ctx, sessionID, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Dispatch applies one command to the session and persists the result.
// All state mutation funnels through here, synchronously per request.
func (s *Service) Dispatch(ctx context.Context, sessionID string, cmd Command) (State, error) {
	var st State
	if err := s.Sessions.Load(ctx, sessionID, &st); err != nil {
		return State{}, err
	}
	if err := s.apply(&st, cmd); err != nil {
		return st, err
	}
	if err := s.Sessions.Save(ctx, sessionID, &st); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Service) apply(st *State, cmd Command) error {
	switch c := cmd.(type) {
	case *AllocateItem:
		if _, ok := st.Cart.LineItemByID(c.LineItemID); !ok {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownLineItem, c.LineItemID)
		}
		err := st.Registry.SetItemAllocation(c.Destination, c.LineItemID, c.Quantity, &st.Ledger)
		if errors.Is(err, ledger.ErrInsufficientRemaining) && obs.AllocationRejectedTotal != nil {
			obs.AllocationRejectedTotal.Inc()
		}
		if err == nil && obs.AllocationTotal != nil {
			obs.AllocationTotal.Inc()
		}
		return err
	case *AddDestination:
		st.Registry.AddDestination()
		return nil
	case *RemoveDestination:
		return st.Registry.RemoveDestination(c.Destination, &st.Ledger)
	case *EditAddress:
		if err := s.checkAddress(c.Address); err != nil {
			return err
		}
		return st.Registry.UpdateAddress(c.Destination, c.Address)
	case *SelectMethod:
		return st.Registry.SetShippingMethod(c.Destination, c.ShippingMethodID)
	case *SetGiftMessage:
		return st.Registry.SetGiftMessage(c.Destination, c.Message)
	case *ToggleSplit:
		st.Registry.ToggleSplitMode(c.Enter, &st.Ledger, st.Cart.LineItems)
		if c.Enter {
			st.Single.ShippingMethodID = ""
		}
		return nil
	case *ImportAddresses:
		st.Registry.MergeImported(c.Addresses)
		if st.Wizard.Step == wizard.StepUpload {
			return st.Wizard.Next()
		}
		return nil
	case *SetSingleShipping:
		if err := s.checkAddress(c.Address); err != nil {
			return err
		}
		addr := c.Address
		st.Single.Shipping = &addr
		return nil
	case *SetSingleBilling:
		if err := s.checkAddress(c.Address); err != nil {
			return err
		}
		addr := c.Address
		st.Single.Billing = &addr
		return nil
	case *SelectSingleMethod:
		st.Single.ShippingMethodID = c.ShippingMethodID
		return nil
	case *NextStep:
		return st.Wizard.Next()
	case *PreviousStep:
		return st.Wizard.Previous()
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func (s *Service) checkAddress(addr commerce.Address) error {
	if s.Validate == nil {
		return nil
	}
	if err := s.Validate.Struct(addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return nil
}

// Submit publishes the session's allocation to the backend and re-absorbs
// the returned cart. At most one submission per session runs at a time.
func (s *Service) Submit(ctx context.Context, sessionID string) (State, error) {
	var st State
	if err := s.Sessions.Load(ctx, sessionID, &st); err != nil {
		return State{}, err
	}
	if err := s.checkSubmittable(&st); err != nil {
		return st, err
	}

	ok, err := s.Sessions.AcquireSubmitLock(ctx, sessionID, s.SubmitLockTTL)
	if err != nil {
		return st, err
	}
	if !ok {
		return st, ErrSubmitInFlight
	}
	defer func() {
		if err := s.Sessions.ReleaseSubmitLock(ctx, sessionID); err != nil {
			s.Log.Error().Err(err).Str("session_id", sessionID).Msg("release submit lock")
		}
	}()

	mode := ModeSingle
	if st.Registry.Split {
		mode = ModeMultiple
	}
	var cart commerce.Cart
	if mode == ModeMultiple {
		cart, err = s.Sync.SubmitMulti(ctx, st.Cart, &st.Registry)
	} else {
		cart, err = s.Sync.SubmitSingle(ctx, st.Cart, syncer.SingleSubmission{
			Shipping:         derefOrZero(st.Single.Shipping),
			Billing:          st.Single.Billing,
			ShippingMethodID: st.Single.ShippingMethodID,
		})
	}
	if err != nil {
		if obs.SubmissionTotal != nil {
			obs.SubmissionTotal.WithLabelValues(string(mode), "error").Inc()
		}
		// Steps already applied stay applied; the caller sees which
		// step failed and the cart keeps whatever landed.
		return st, err
	}
	if obs.SubmissionTotal != nil {
		obs.SubmissionTotal.WithLabelValues(string(mode), "ok").Inc()
	}

	s.hydrate(&st, cart)
	st.Submitted = true
	if err := s.Sessions.Save(ctx, sessionID, &st); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Service) checkSubmittable(st *State) error {
	if !st.Registry.Split {
		if st.Single.Shipping == nil || strings.TrimSpace(st.Single.Shipping.Country) == "" {
			return ErrMissingCountry
		}
		return nil
	}
	if st.Ledger.HasUnallocated() {
		return fmt.Errorf("%w: unallocated units remain", ErrNotSubmittable)
	}
	for _, dest := range st.Registry.Destinations {
		if !dest.HasAllocations() {
			continue
		}
		if strings.TrimSpace(dest.Address.Country) == "" {
			return fmt.Errorf("%w: %s", ErrMissingCountry, dest.Key)
		}
		if !dest.DeliverySelected {
			return fmt.Errorf("%w: %s", ErrNotSubmittable, dest.Key)
		}
	}
	return nil
}

func derefOrZero(addr *commerce.Address) commerce.Address {
	if addr == nil {
		return commerce.Address{}
	}
	return *addr
}
