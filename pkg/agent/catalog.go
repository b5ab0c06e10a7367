package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk agent list
type Catalog struct {
	// Agents holds the configured agents
	Agents []Config `json:"agents" yaml:"agents"`
}

// LoadCatalog reads agent configurations from a YAML file
func LoadCatalog(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse agent catalog: %w", err)
	}

	return catalog.Agents, nil
}
