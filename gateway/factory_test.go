package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name    string
	initErr error
	config  Config
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Initialize(config Config) error {
	s.config = config
	return s.initErr
}

func (s *stubAdapter) CreatePaymentIntent(_ context.Context, _ IntentRequest) (*PaymentIntent, error) {
	return nil, nil
}

func (s *stubAdapter) VerifyWebhookSignature(_ []byte, _ string) bool { return true }

func (s *stubAdapter) ParseWebhookEvent(_ []byte) (*WebhookEvent, error) { return nil, nil }

func validTestConfig(provider string) Config {
	return Config{
		Provider:      provider,
		APIKey:        "key_test",
		APISecret:     "secret_test",
		WebhookSecret: "whsec_test",
		Environment:   "sandbox",
	}
}

func TestFactory_Create(t *testing.T) {
	registry := NewRegistry()
	registry.Register("stub", func() Adapter { return &stubAdapter{name: "stub"} })

	factory := NewFactory(registry)

	adapter, err := factory.Create(validTestConfig("stub"))
	require.NoError(t, err)
	require.NotNil(t, adapter)
	assert.Equal(t, "stub", adapter.Name())

	// Initialize must have received the full credential set
	stub := adapter.(*stubAdapter)
	assert.Equal(t, "key_test", stub.config.APIKey)
	assert.Equal(t, "whsec_test", stub.config.WebhookSecret)
}

func TestFactory_Create_MissingCredentials(t *testing.T) {
	registry := NewRegistry()
	registry.Register("stub", func() Adapter { return &stubAdapter{name: "stub"} })

	factory := NewFactory(registry)

	tests := []struct {
		name    string
		mutate  func(*Config)
		missing string
	}{
		{
			name:    "missing_provider",
			mutate:  func(c *Config) { c.Provider = "" },
			missing: "provider",
		},
		{
			name:    "missing_api_key",
			mutate:  func(c *Config) { c.APIKey = "" },
			missing: "apiKey",
		},
		{
			name:    "missing_api_secret",
			mutate:  func(c *Config) { c.APISecret = "  " },
			missing: "apiSecret",
		},
		{
			name:    "missing_webhook_secret",
			mutate:  func(c *Config) { c.WebhookSecret = "" },
			missing: "webhookSecret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig("stub")
			tt.mutate(&cfg)

			adapter, err := factory.Create(cfg)
			assert.Nil(t, adapter)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestFactory_Create_AllMissingFieldsNamed(t *testing.T) {
	factory := NewFactory(NewRegistry())

	_, err := factory.Create(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, field := range []string{"provider", "apiKey", "apiSecret", "webhookSecret"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestFactory_Create_UnknownProvider(t *testing.T) {
	factory := NewFactory(NewRegistry())

	adapter, err := factory.Create(validTestConfig("nope"))
	assert.Nil(t, adapter)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.Contains(t, err.Error(), "nope")
}

func TestFactory_Create_InitializeFails(t *testing.T) {
	registry := NewRegistry()
	registry.Register("broken", func() Adapter {
		return &stubAdapter{name: "broken", initErr: errors.New("bad credentials")}
	})

	factory := NewFactory(registry)

	adapter, err := factory.Create(validTestConfig("broken"))
	assert.Nil(t, adapter)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "broken")
}

func TestFactory_NilRegistryFallsBackToDefault(t *testing.T) {
	factory := NewFactory(nil)
	require.NotNil(t, factory)

	Register("factory-default-test", func() Adapter { return &stubAdapter{name: "factory-default-test"} })

	adapter, err := factory.Create(validTestConfig("factory-default-test"))
	require.NoError(t, err)
	assert.Equal(t, "factory-default-test", adapter.Name())
}
