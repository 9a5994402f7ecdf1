package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrProviderExists is returned when attempting to register a provider type more than once.
var ErrProviderExists = errors.New("provider registry: provider already registered")

// ProviderConfig bundles the deployment configuration for a provider required during instantiation.
type ProviderConfig struct {
	Type         string
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Issuer is the OIDC discovery base. Ignored by GitHub.
	Issuer string
	// AuthURL, TokenURL and APIURL override the GitHub endpoints, mainly for GitHub Enterprise.
	AuthURL  string
	TokenURL string
	APIURL   string
}

// Factory builds a concrete provider instance from configuration.
type Factory func(cfg ProviderConfig) (Provider, error)

// Descriptor describes a provider implementation the registry can expose.
type Descriptor struct {
	Metadata Metadata
	Factory  Factory
}

// Registry maintains a catalogue of known authentication provider implementations.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
	}
}

// DefaultRegistry returns a registry holding the GitHub, GitLab and Google implementations.
func DefaultRegistry(opts Options) *Registry {
	reg := NewRegistry()
	for _, desc := range []Descriptor{
		NewGitHubDescriptor(opts),
		NewOIDCDescriptor(GitLab, opts),
		NewOIDCDescriptor(Google, opts),
	} {
		// Types are distinct constants.
		_ = reg.Register(desc)
	}
	return reg
}

// Register adds a provider descriptor to the registry, enforcing uniqueness by provider type.
func (r *Registry) Register(desc Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta := normaliseMetadata(desc.Metadata)
	if meta.Type == "" {
		return errors.New("provider registry: metadata type is required")
	}

	if _, exists := r.descriptors[meta.Type]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, meta.Type)
	}

	r.descriptors[meta.Type] = Descriptor{
		Metadata: meta,
		Factory:  desc.Factory,
	}
	return nil
}

// Metadata returns all registered provider metadata ordered by their configured order and display name.
func (r *Registry) Metadata() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Metadata, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		items = append(items, desc.Metadata)
	}
	sortMetadata(items)
	return items
}

// Descriptor returns the registered descriptor for the provider type.
func (r *Registry) Descriptor(providerType string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.descriptors[NormaliseType(providerType)]
	return desc, ok
}

// FactoryFor retrieves the factory function for the requested provider type, if registered.
func (r *Registry) FactoryFor(providerType string) (Factory, bool) {
	desc, ok := r.Descriptor(providerType)
	if !ok || desc.Factory == nil {
		return nil, false
	}
	return desc.Factory, true
}

// NormaliseType lower-cases and trims a provider name.
func NormaliseType(providerType string) string {
	return strings.ToLower(strings.TrimSpace(providerType))
}

func normaliseMetadata(meta Metadata) Metadata {
	meta.Type = NormaliseType(meta.Type)
	meta.DisplayName = strings.TrimSpace(meta.DisplayName)
	meta.Icon = strings.TrimSpace(meta.Icon)
	meta.ButtonText = strings.TrimSpace(meta.ButtonText)
	if meta.Order == 0 {
		meta.Order = 100
	}
	if meta.Flow == "" {
		meta.Flow = "redirect"
	}
	return meta
}

func sortMetadata(items []Metadata) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order == items[j].Order {
			return items[i].DisplayName < items[j].DisplayName
		}
		return items[i].Order < items[j].Order
	})
}
