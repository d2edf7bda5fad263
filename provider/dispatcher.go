package provider

import (
	"go.uber.org/zap"

	"github.com/brandlens/brandlens/errors"
)

// DispatcherConfig wires one ClientConfig per provider plus the default
// provider used when a request does not name one.
type DispatcherConfig struct {
	Default    string
	OpenAI     ClientConfig
	Anthropic  ClientConfig
	OpenRouter ClientConfig
}

// Dispatcher routes completion requests to the configured provider
// clients. The provider set is fixed at construction; asking for a
// provider outside it is a configuration error.
type Dispatcher struct {
	clients map[Type]Client
	def     Type
}

// NewDispatcher builds a dispatcher from configuration. Fails if the
// default provider identifier is not in the closed set.
func NewDispatcher(cfg DispatcherConfig, logger *zap.SugaredLogger) (*Dispatcher, error) {
	def, err := ParseType(cfg.Default)
	if err != nil {
		return nil, errors.Wrap(err, "invalid default provider")
	}

	cfg.OpenAI.Logger = logger
	cfg.Anthropic.Logger = logger
	cfg.OpenRouter.Logger = logger

	return &Dispatcher{
		def: def,
		clients: map[Type]Client{
			TypeOpenAI:     NewOpenAIClient(cfg.OpenAI),
			TypeAnthropic:  NewAnthropicClient(cfg.Anthropic),
			TypeOpenRouter: NewOpenRouterClient(cfg.OpenRouter),
		},
	}, nil
}

// NewDispatcherWithClients builds a dispatcher over explicit clients
// (for testing with fakes)
func NewDispatcherWithClients(def Type, clients map[Type]Client) *Dispatcher {
	return &Dispatcher{def: def, clients: clients}
}

// Default returns the default provider type
func (d *Dispatcher) Default() Type { return d.def }

// Get returns the client for a provider type. Unknown types and clients
// missing an API key both surface as ErrProviderConfig.
func (d *Dispatcher) Get(t Type) (Client, error) {
	client, ok := d.clients[t]
	if !ok {
		return nil, errors.Wrapf(errors.ErrProviderConfig, "no client registered for provider %q", t)
	}
	if !client.IsConfigured() {
		return nil, errors.Wrapf(errors.ErrProviderConfig, "provider %q has no API key configured", t)
	}
	return client, nil
}

// Resolve returns the client for a provider identifier, or the default
// client when the identifier is empty.
func (d *Dispatcher) Resolve(name string) (Client, error) {
	if name == "" {
		return d.Get(d.def)
	}
	t, err := ParseType(name)
	if err != nil {
		return nil, err
	}
	return d.Get(t)
}
