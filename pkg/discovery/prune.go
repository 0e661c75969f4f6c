package discovery

import (
	"strings"

	"github.com/xlttj/kportfwd/pkg/config"
)

// serviceKinds are the kubectl resource names that address a Service. An
// entry without a kind forwards to a pod and is absent on purpose.
var serviceKinds = map[string]bool{"svc": true, "service": true, "services": true}

// StaleEntries returns the catalog entries that point at a Service in a
// namespace matching filter but which the cluster no longer has. Entries for
// pods, deployments and other kinds, including kind-less pod entries, are
// never considered stale. A Service entry without a namespace targets
// "default".
func StaleEntries(entries []config.ServiceDescription, services []ServiceInfo, filter string) []config.ServiceDescription {
	live := make(map[string]bool, len(services))
	for _, svc := range services {
		live[svc.Namespace+"/"+svc.Name] = true
	}

	var stale []config.ServiceDescription
	for _, entry := range entries {
		if !serviceKinds[strings.ToLower(entry.Kind)] {
			continue
		}
		namespace := entry.Namespace
		if namespace == "" {
			namespace = "default"
		}
		if !matchesWildcardPattern(namespace, filter) {
			continue
		}
		if !live[namespace+"/"+entry.Target()] {
			stale = append(stale, entry)
		}
	}
	return stale
}
