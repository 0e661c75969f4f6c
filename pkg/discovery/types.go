package discovery

import (
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/xlttj/kportfwd/pkg/config"
)

// DefaultBasePort is where local ports for privileged remote ports start.
const DefaultBasePort = 10000

// Options holds the configuration for service discovery
type Options struct {
	NamespaceFilter string // Wildcard filter for namespaces (e.g., "my-app-*")
	Context         string // Kubernetes context to use; empty means current
	Kubectl         string // kubectl binary
	OutputFile      string // Output file path (empty = stdout)
	AcceptAll       bool   // Accept all services without prompting
	Verbose         bool   // Enable verbose output
	BasePort        int    // First local port used for remote ports below 1024
}

// ServiceInfo represents a discovered Kubernetes service
type ServiceInfo struct {
	Name      string
	Namespace string
	Ports     []corev1.ServicePort
	Labels    map[string]string
	Type      corev1.ServiceType
}

// DiscoveredService represents a service that was found and potentially selected
type DiscoveredService struct {
	ServiceInfo ServiceInfo
	Selected    bool
}

// DiscoveryResult holds the results of the discovery process
type DiscoveryResult struct {
	Services        []DiscoveredService
	SelectedCount   int
	TotalCount      int
	Context         string
	NamespaceFilter string
}

// Selected returns the services marked for the catalog.
func (dr *DiscoveryResult) Selected() []ServiceInfo {
	var out []ServiceInfo
	for _, discovered := range dr.Services {
		if discovered.Selected {
			out = append(out, discovered.ServiceInfo)
		}
	}
	return out
}

// GenerateCatalog turns every port of every service into a catalog entry.
// Entries are named after the service, suffixed with the port name (or
// number) when the service exposes more than one port, and prefixed with the
// namespace when the name is already taken. The local port equals the remote
// port unless the remote port is privileged, in which case ports are handed
// out sequentially from basePort.
func GenerateCatalog(services []ServiceInfo, basePort int) []config.ServiceDescription {
	if basePort <= 0 {
		basePort = DefaultBasePort
	}

	var entries []config.ServiceDescription
	used := make(map[string]bool)
	nextLocal := basePort

	for _, service := range services {
		for _, port := range service.Ports {
			name := sanitizeIDPart(service.Name)
			if len(service.Ports) > 1 {
				name += "-" + portSuffix(port)
			}
			if used[name] {
				name = sanitizeIDPart(service.Namespace) + "-" + name
			}
			for base, n := name, 2; used[name]; n++ {
				name = fmt.Sprintf("%s-%d", base, n)
			}
			used[name] = true

			localPort := int(port.Port)
			if localPort < 1024 {
				localPort = nextLocal
				nextLocal++
			}

			entries = append(entries, config.ServiceDescription{
				Name:        name,
				Namespace:   service.Namespace,
				Kind:        "svc",
				Object:      service.Name,
				Port:        config.Port(strconv.Itoa(localPort)),
				ServicePort: config.Port(strconv.Itoa(int(port.Port))),
			})
		}
	}

	return entries
}

func portSuffix(port corev1.ServicePort) string {
	if port.Name != "" {
		return sanitizeIDPart(port.Name)
	}
	return strconv.Itoa(int(port.Port))
}

// sanitizeIDPart keeps letters and digits and folds runs of separators into
// a single hyphen.
func sanitizeIDPart(input string) string {
	var b strings.Builder
	for _, char := range input {
		switch {
		case (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9'):
			b.WriteRune(char)
		case char == '-' || char == '_' || char == '.':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
	}

	result := strings.TrimRight(b.String(), "-")
	if result == "" {
		result = "unknown"
	}
	return result
}

// matchesWildcardPattern checks if a string matches a wildcard pattern.
// Supports * at the beginning, end, or both.
func matchesWildcardPattern(text, pattern string) bool {
	switch {
	case pattern == "" || pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		return strings.Contains(text, pattern[1:len(pattern)-1])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(text, pattern[:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(text, pattern[1:])
	default:
		return text == pattern
	}
}

func hasWildcard(pattern string) bool {
	return pattern == "" || strings.Contains(pattern, "*")
}
