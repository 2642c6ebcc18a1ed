package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the on-disk registry: the deployments to register and the
// checkpoints the catalog serves. Loaded once at startup, read-only after.
type CatalogFile struct {
	Deployments []Deployment      `yaml:"deployments"`
	Models      []ModelDescriptor `yaml:"models"`
}

// LoadCatalogFile reads and decodes the registry file.
func LoadCatalogFile(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var cf CatalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing catalog file %s: %w", path, err)
	}
	return &cf, nil
}
