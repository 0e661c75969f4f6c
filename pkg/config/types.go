package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Port is a port value from the catalog. The file may carry it as a JSON
// number or a string; it is kept as the string handed to kubectl.
type Port string

// UnmarshalJSON accepts 8080, "8080" and null.
func (p *Port) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Port(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("port must be a number or a string: %w", err)
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("port %s is not an integer", n)
	}
	*p = Port(strconv.FormatInt(i, 10))
	return nil
}

// MarshalJSON writes numeric ports as numbers.
func (p Port) MarshalJSON() ([]byte, error) {
	if _, err := strconv.Atoi(string(p)); err == nil {
		return []byte(p), nil
	}
	return json.Marshal(string(p))
}

// UnmarshalYAML accepts any scalar.
func (p *Port) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: port must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*p = ""
		return nil
	}
	*p = Port(node.Value)
	return nil
}

// ServiceDescription is one catalog entry: what a session forwards to.
type ServiceDescription struct {
	Name        string `json:"-" yaml:"-"`
	Namespace   string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Object      string `json:"object,omitempty" yaml:"object,omitempty"`
	Port        Port   `json:"port,omitempty" yaml:"port,omitempty"`
	ServicePort Port   `json:"serviceport,omitempty" yaml:"serviceport,omitempty"`
}

// Target returns the object name the forward points at: Object when set,
// otherwise the catalog key.
func (s ServiceDescription) Target() string {
	if s.Object != "" {
		return s.Object
	}
	return s.Name
}

// Validate reports an InvalidServiceError when the description cannot be
// turned into a command.
func (s ServiceDescription) Validate() error {
	if s.Port == "" {
		return &InvalidServiceError{Service: s.Name, Reason: "missing port"}
	}
	return nil
}
