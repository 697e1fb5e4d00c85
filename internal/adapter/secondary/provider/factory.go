package provider

import (
	"fmt"
	"strings"

	"github.com/orderflow/payment-core/internal/port/output"
)

// Registry is the closed provider registry, built once at process start.
// Resolution failures are configuration errors reported to the caller, never
// panics.
type Registry struct {
	providers map[string]output.PaymentProvider
}

// RegistryConfig selects which providers the registry carries.
type RegistryConfig struct {
	StripeLike StripeLikeConfig
	P24Like    P24LikeConfig
	// AllowStub admits the always-valid stub provider. It must stay false in
	// production.
	AllowStub bool
}

// NewRegistry builds the registry from configuration.
func NewRegistry(cfg RegistryConfig) *Registry {
	providers := map[string]output.PaymentProvider{}

	stripe := NewStripeLikeProvider(cfg.StripeLike)
	providers[stripe.Name()] = stripe

	p24 := NewP24LikeProvider(cfg.P24Like)
	providers[p24.Name()] = p24

	if cfg.AllowStub {
		stub := NewStubProvider()
		providers[stub.Name()] = stub
	}

	return &Registry{providers: providers}
}

var _ output.ProviderFactory = (*Registry)(nil)

// Make resolves a provider by name.
func (r *Registry) Make(name string) (output.PaymentProvider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
	return p, nil
}
