package providers

import (
	"context"
	"fmt"
	"sync"
)

// Catalog is the deployment's view of the registry: which providers are enabled, and a lazily
// built instance for each of them. Instantiation may involve network discovery, so it happens on
// first use rather than at start-up.
type Catalog struct {
	registry *Registry
	configs  map[string]ProviderConfig

	mu        sync.Mutex
	instances map[string]Provider
}

// NewCatalog binds provider configuration to registered implementations. Configuration for a
// type with no descriptor is rejected.
func NewCatalog(registry *Registry, configs []ProviderConfig) (*Catalog, error) {
	if registry == nil {
		return nil, fmt.Errorf("provider catalog: registry is required")
	}

	byType := make(map[string]ProviderConfig, len(configs))
	for _, cfg := range configs {
		cfg.Type = NormaliseType(cfg.Type)
		if _, ok := registry.Descriptor(cfg.Type); !ok {
			return nil, fmt.Errorf("%w: %s", ErrProviderUnknown, cfg.Type)
		}
		byType[cfg.Type] = cfg
	}

	return &Catalog{
		registry:  registry,
		configs:   byType,
		instances: make(map[string]Provider),
	}, nil
}

// Enabled reports whether the provider is registered and switched on.
func (c *Catalog) Enabled(name string) bool {
	cfg, ok := c.configs[NormaliseType(name)]
	return ok && cfg.Enabled
}

// Check validates that name refers to an enabled provider without instantiating it.
func (c *Catalog) Check(name string) error {
	name = NormaliseType(name)
	if _, ok := c.registry.Descriptor(name); !ok {
		return fmt.Errorf("%w: %s", ErrProviderUnknown, name)
	}
	if !c.Enabled(name) {
		return fmt.Errorf("%w: %s", ErrProviderDisabled, name)
	}
	return nil
}

// Lookup returns the provider instance, building it on first use. Construction failures are not
// cached so a transient discovery error does not disable the provider permanently.
func (c *Catalog) Lookup(ctx context.Context, name string) (Provider, error) {
	name = NormaliseType(name)
	if err := c.Check(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.instances[name]; ok {
		return p, nil
	}

	factory, ok := c.registry.FactoryFor(name)
	if !ok {
		return nil, fmt.Errorf("provider catalog: no factory for %s", name)
	}
	p, err := factory(c.configs[name])
	if err != nil {
		return nil, fmt.Errorf("provider catalog: build %s: %w", name, err)
	}
	c.instances[name] = p
	return p, nil
}

// EnabledMetadata lists the presentation metadata of enabled providers.
func (c *Catalog) EnabledMetadata() []Metadata {
	all := c.registry.Metadata()
	out := make([]Metadata, 0, len(all))
	for _, meta := range all {
		if c.Enabled(meta.Type) {
			out = append(out, meta)
		}
	}
	return out
}
