package refdata

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/split-checkout/internal/commerce"
)

const (
	methodsKey   = "splitcheckout:refdata:shipping-methods"
	countriesKey = "splitcheckout:refdata:countries"
	addressesKey = "splitcheckout:refdata:addresses:"
)

// Source is the slice of the commerce client serving reference data.
type Source interface {
	ShippingMethods(ctx context.Context) ([]commerce.ShippingMethod, error)
	ProjectSettings(ctx context.Context) (commerce.ProjectSettings, error)
	AccountAddresses(ctx context.Context, accountID string) ([]commerce.Address, error)
}

// Service serves the reference data the wizard screens need: available
// delivery methods, shippable countries and the shopper's address book.
// Reads go cache-first; a failed cache write is logged, not fatal.
type Service struct {
	Backend Source
	Cache   *Cache
	Log     zerolog.Logger
}

// ShippingMethods lists the delivery methods offered by the backend.
func (s *Service) ShippingMethods(ctx context.Context) ([]commerce.ShippingMethod, error) {
	var methods []commerce.ShippingMethod
	if ok, err := s.Cache.GetJSON(ctx, methodsKey, &methods); err == nil && ok {
		return methods, nil
	}
	methods, err := s.Backend.ShippingMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("refdata: shipping methods: %w", err)
	}
	if err := s.Cache.SetJSON(ctx, methodsKey, methods); err != nil {
		s.Log.Warn().Err(err).Msg("cache shipping methods")
	}
	return methods, nil
}

// Countries lists the countries the project ships to.
func (s *Service) Countries(ctx context.Context) ([]string, error) {
	var countries []string
	if ok, err := s.Cache.GetJSON(ctx, countriesKey, &countries); err == nil && ok {
		return countries, nil
	}
	settings, err := s.Backend.ProjectSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("refdata: project settings: %w", err)
	}
	if err := s.Cache.SetJSON(ctx, countriesKey, settings.Countries); err != nil {
		s.Log.Warn().Err(err).Msg("cache countries")
	}
	return settings.Countries, nil
}

// AccountAddresses lists the stored addresses of a shopper account.
func (s *Service) AccountAddresses(ctx context.Context, accountID string) ([]commerce.Address, error) {
	key := addressesKey + accountID
	var addresses []commerce.Address
	if ok, err := s.Cache.GetJSON(ctx, key, &addresses); err == nil && ok {
		return addresses, nil
	}
	addresses, err := s.Backend.AccountAddresses(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("refdata: account addresses: %w", err)
	}
	if err := s.Cache.SetJSON(ctx, key, addresses); err != nil {
		s.Log.Warn().Err(err).Msg("cache account addresses")
	}
	return addresses, nil
}
