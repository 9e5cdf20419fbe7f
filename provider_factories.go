package mailroom

import (
	"github.com/goliatone/go-mailroom/core"
	"github.com/goliatone/go-mailroom/providers/mailgun"
	"github.com/goliatone/go-mailroom/providers/mandrill"
	"github.com/goliatone/go-mailroom/providers/postmark"
)

func MailgunProvider() core.ProviderAdapter {
	return mailgun.New()
}

func MandrillProvider() core.ProviderAdapter {
	return mandrill.New()
}

func PostmarkProvider() core.ProviderAdapter {
	return postmark.New()
}

// RegisterBuiltinProviders installs every bundled webhook adapter on the
// given registry.
func RegisterBuiltinProviders(registry *core.ProviderRegistry) error {
	for _, adapter := range []core.ProviderAdapter{
		MailgunProvider(),
		MandrillProvider(),
		PostmarkProvider(),
	} {
		if err := registry.Register(adapter); err != nil {
			return err
		}
	}
	return nil
}

// DefaultRegistry returns a registry preloaded with the bundled providers.
func DefaultRegistry() (*core.ProviderRegistry, error) {
	registry := core.NewProviderRegistry()
	if err := RegisterBuiltinProviders(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
