package config

import (
	"errors"
	"fmt"
)

// ErrInvalidService is matched by every InvalidServiceError.
var ErrInvalidService = errors.New("invalid service")

// InvalidServiceError reports a catalog lookup or validation failure.
type InvalidServiceError struct {
	Service string
	Reason  string
}

func (e *InvalidServiceError) Error() string {
	return fmt.Sprintf("invalid service %q: %s", e.Service, e.Reason)
}

func (e *InvalidServiceError) Unwrap() error {
	return ErrInvalidService
}

// ServiceCatalog is the read-only view of the catalog that sessions use.
type ServiceCatalog interface {
	// Lookup returns a copy of the named description or an InvalidServiceError.
	Lookup(name string) (ServiceDescription, error)
	// Names returns the catalog keys in lexicographic order.
	Names() []string
	Len() int
}
