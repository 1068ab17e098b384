package gateway

import (
	"fmt"
	"strings"
)

// Factory constructs adapters from validated configuration. Construction is a
// pure decision: credentials are checked and the provider tag dispatched with
// no network I/O.
type Factory struct {
	registry *Registry
}

// NewFactory creates a factory backed by the given registry, or the default
// registry when nil.
func NewFactory(registry *Registry) *Factory {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &Factory{registry: registry}
}

// Create validates config and constructs the adapter for config.Provider.
// Missing credentials fail with ErrInvalidConfig before any dispatch; an
// unknown provider tag fails with ErrUnsupportedProvider naming the provider.
func (f *Factory) Create(config Config) (Adapter, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	factory, err := f.registry.Get(config.Provider)
	if err != nil {
		return nil, err
	}

	adapter := factory()
	if err := adapter.Initialize(config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, config.Provider, err)
	}

	return adapter, nil
}

func validateConfig(config Config) error {
	var missing []string
	if strings.TrimSpace(config.Provider) == "" {
		missing = append(missing, "provider")
	}
	if strings.TrimSpace(config.APIKey) == "" {
		missing = append(missing, "apiKey")
	}
	if strings.TrimSpace(config.APISecret) == "" {
		missing = append(missing, "apiSecret")
	}
	if strings.TrimSpace(config.WebhookSecret) == "" {
		missing = append(missing, "webhookSecret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}
