package agent

import (
	"errors"
	"fmt"
	"sort"
)

// Common errors
var (
	// ErrAgentNotFound is returned when an agent doesn't exist
	ErrAgentNotFound = errors.New("agent not found")
)

// Registry provides read access to the configured agents
type Registry interface {
	// Lookup returns the agent with the given id
	Lookup(id string) (Config, error)

	// List returns all agents sorted by id
	List() []Config
}

// StaticRegistry is an immutable registry built once from a catalog.
// All validation happens at construction; lookups never fail for
// structural reasons afterwards.
type StaticRegistry struct {
	agents map[string]Config
	ids    []string
}

// NewRegistry creates a registry from a list of agent configurations
func NewRegistry(configs []Config) (*StaticRegistry, error) {
	agents := make(map[string]Config, len(configs))
	ids := make([]string, 0, len(configs))

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid agent catalog: %w", err)
		}
		if _, exists := agents[cfg.ID]; exists {
			return nil, fmt.Errorf("invalid agent catalog: duplicate agent id %q", cfg.ID)
		}
		agents[cfg.ID] = cfg
		ids = append(ids, cfg.ID)
	}

	sort.Strings(ids)

	return &StaticRegistry{agents: agents, ids: ids}, nil
}

// NewRegistryFromFile loads a YAML catalog and builds a registry from it
func NewRegistryFromFile(path string) (*StaticRegistry, error) {
	configs, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(configs)
}

// Lookup returns the agent with the given id
func (r *StaticRegistry) Lookup(id string) (Config, error) {
	cfg, exists := r.agents[id]
	if !exists {
		return Config{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return cfg, nil
}

// List returns all agents sorted by id
func (r *StaticRegistry) List() []Config {
	configs := make([]Config, 0, len(r.ids))
	for _, id := range r.ids {
		configs = append(configs, r.agents[id])
	}
	return configs
}
