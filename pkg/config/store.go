package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xlttj/kportfwd/pkg/logging"

	"gopkg.in/yaml.v3"
)

// ConfigDir holds the catalog and settings files.
const ConfigDir = "~/.config/kubernetes_port_forwarder"

// DefaultCatalogPath is where the catalog is read from when no path is given.
var DefaultCatalogPath = filepath.Join(ConfigDir, "config.json")

// Catalog is the immutable set of service descriptions loaded at startup.
// It is safe for concurrent readers; nothing mutates it after construction.
type Catalog struct {
	services map[string]ServiceDescription
	names    []string
	source   string
}

var _ ServiceCatalog = (*Catalog)(nil)

// NewCatalog builds a catalog from a name-keyed map. Each description's Name
// is set from its key.
func NewCatalog(services map[string]ServiceDescription) *Catalog {
	c := &Catalog{services: make(map[string]ServiceDescription, len(services))}
	for name, svc := range services {
		svc.Name = name
		c.services[name] = svc
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

// Lookup returns a copy of the named description.
func (c *Catalog) Lookup(name string) (ServiceDescription, error) {
	svc, ok := c.services[name]
	if !ok {
		return ServiceDescription{}, &InvalidServiceError{Service: name, Reason: "not found in catalog"}
	}
	return svc, nil
}

// Names returns the catalog keys sorted.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.services)
}

// All returns every description ordered by name.
func (c *Catalog) All() []ServiceDescription {
	out := make([]ServiceDescription, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.services[name])
	}
	return out
}

// Source is the path the catalog was loaded from, empty for in-memory catalogs.
func (c *Catalog) Source() string {
	return c.source
}

// expandHomeDir replaces the leading ~ with the user's home directory
func expandHomeDir(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, path[1:]), nil
}

// ExpandPath is expandHomeDir for callers outside the package.
func ExpandPath(path string) (string, error) {
	return expandHomeDir(path)
}

// ensureConfigDir ensures the directory holding configPath exists
func ensureConfigDir(configPath string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(configPath), perm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// LoadCatalog reads the catalog at path, choosing the backend by extension:
// .yaml/.yml for YAML, .db/.sqlite for SQLite, anything else as JSON.
// A missing file yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	expanded, err := expandHomeDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog path: %w", err)
	}

	var cat *Catalog
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".db", ".sqlite", ".sqlite3":
		cat, err = loadSQLiteCatalog(expanded)
	case ".yaml", ".yml":
		cat, err = loadFileCatalog(expanded, yaml.Unmarshal)
	default:
		cat, err = loadFileCatalog(expanded, json.Unmarshal)
	}
	if err != nil {
		return nil, err
	}
	cat.source = expanded
	logging.LogDebug("Loaded %d services from %s", cat.Len(), expanded)
	return cat, nil
}

func loadFileCatalog(path string, unmarshal func([]byte, any) error) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logging.LogDebug("Catalog file %s does not exist, using empty catalog", path)
		return NewCatalog(nil), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var services map[string]ServiceDescription
	if err := unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return NewCatalog(services), nil
}

// WriteCatalogJSON writes services in the catalog file format.
func WriteCatalogJSON(path string, services []ServiceDescription) error {
	expanded, err := expandHomeDir(path)
	if err != nil {
		return err
	}
	if err := ensureConfigDir(expanded, 0755); err != nil {
		return err
	}
	data, err := MarshalCatalogJSON(services)
	if err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0644)
}

// MarshalCatalogJSON renders services as the name-keyed JSON document.
func MarshalCatalogJSON(services []ServiceDescription) ([]byte, error) {
	doc := make(map[string]ServiceDescription, len(services))
	for _, svc := range services {
		doc[svc.Name] = svc
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog: %w", err)
	}
	return append(data, '\n'), nil
}
