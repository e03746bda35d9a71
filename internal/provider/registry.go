package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Registry manages all available providers and their capability metadata.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	infos     map[string]Info
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		infos:     make(map[string]Info),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
	r.infos[provider.ID()] = provider.Info()
}

// RegisterInfo records capability metadata for a provider without a
// transport. Used for providers reached through an external gateway and in
// tests.
func (r *Registry) RegisterInfo(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos[info.ID] = info
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// InfoFor returns the capability metadata for a provider.
func (r *Registry) InfoFor(providerID string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.infos[providerID]
	return info, ok
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*Model, error) {
	r.mu.RLock()
	info, ok := r.infos[providerID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}

	for _, model := range info.Models {
		if model.ID == modelID {
			return &model, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// ParseModelRef splits a "provider/model" reference.
func ParseModelRef(ref string) (providerID, modelID string, err error) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model reference: %q", ref)
	}
	return parts[0], parts[1], nil
}
