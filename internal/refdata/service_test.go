package refdata_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/split-checkout/internal/commerce"
	"github.com/noah-isme/split-checkout/internal/refdata"
)

type stubSource struct {
	methodsCalls int
	countryCalls int
}

func (s *stubSource) ShippingMethods(ctx context.Context) ([]commerce.ShippingMethod, error) {
	s.methodsCalls++
	return []commerce.ShippingMethod{{ID: "dhl", Name: "DHL", IsDefault: true}}, nil
}

func (s *stubSource) ProjectSettings(ctx context.Context) (commerce.ProjectSettings, error) {
	s.countryCalls++
	return commerce.ProjectSettings{Countries: []string{"DE", "FR"}}, nil
}

func (s *stubSource) AccountAddresses(ctx context.Context, accountID string) ([]commerce.Address, error) {
	return []commerce.Address{{Key: "home", Country: "DE"}}, nil
}

func newService(t *testing.T) (*refdata.Service, *stubSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &stubSource{}
	return &refdata.Service{
		Backend: source,
		Cache:   refdata.NewCache(client, time.Minute),
	}, source, mr
}

func TestShippingMethodsCached(t *testing.T) {
	svc, source, _ := newService(t)

	first, err := svc.ShippingMethods(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.ShippingMethods(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, source.methodsCalls)
}

func TestCountriesCacheExpiry(t *testing.T) {
	svc, source, mr := newService(t)

	_, err := svc.Countries(context.Background())
	require.NoError(t, err)
	_, err = svc.Countries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, source.countryCalls)

	mr.FastForward(2 * time.Minute)

	_, err = svc.Countries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, source.countryCalls)
}

func TestAccountAddresses(t *testing.T) {
	svc, _, _ := newService(t)

	addresses, err := svc.AccountAddresses(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	require.Equal(t, "home", addresses[0].Key)
}
