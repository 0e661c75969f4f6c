package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/logging"
)

// DiscoverServices finds services in the specified Kubernetes context and namespaces
func DiscoverServices(ctx context.Context, opts Options) (*DiscoveryResult, error) {
	logging.LogDebug("Starting service discovery with options: %+v", opts)

	kubectl := opts.Kubectl
	if kubectl == "" {
		kubectl = k8s.DefaultKubectl
	}

	kubeContext := opts.Context
	if kubeContext == "" {
		current, err := getCurrentContext(ctx, kubectl)
		if err != nil {
			return nil, fmt.Errorf("failed to get current context: %w", err)
		}
		kubeContext = current
	}

	args := []string{"get", "services", "-o", "json", "--context", kubeContext}
	if hasWildcard(opts.NamespaceFilter) {
		args = append(args, "--all-namespaces")
	} else {
		args = append(args, "--namespace", opts.NamespaceFilter)
	}

	out, err := k8s.RunKubectlFn(ctx, kubectl, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	services, err := ParseServiceList(out, opts.NamespaceFilter)
	if err != nil {
		return nil, err
	}

	result := &DiscoveryResult{
		Services:        make([]DiscoveredService, len(services)),
		TotalCount:      len(services),
		Context:         kubeContext,
		NamespaceFilter: opts.NamespaceFilter,
	}
	for i, service := range services {
		result.Services[i] = DiscoveredService{ServiceInfo: service}
	}
	logging.LogInfo("Discovered %d service(s) in context %s", result.TotalCount, kubeContext)
	return result, nil
}

// getCurrentContext gets the current kubectl context
func getCurrentContext(ctx context.Context, kubectl string) (string, error) {
	out, err := k8s.RunKubectlFn(ctx, kubectl, "config", "current-context")
	if err != nil {
		return "", err
	}
	current := strings.TrimSpace(string(out))
	if current == "" {
		return "", fmt.Errorf("no current context set")
	}
	return current, nil
}

// ParseServiceList decodes `kubectl get services -o json` output, keeps the
// services whose namespace matches filter and that expose at least one port,
// and orders them by namespace and name.
func ParseServiceList(data []byte, filter string) ([]ServiceInfo, error) {
	var list corev1.ServiceList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse kubectl output: %w", err)
	}

	var services []ServiceInfo
	for _, item := range list.Items {
		if !matchesWildcardPattern(item.Namespace, filter) {
			continue
		}
		if len(item.Spec.Ports) == 0 {
			logging.LogDebug("Skipping service %s/%s without ports", item.Namespace, item.Name)
			continue
		}
		services = append(services, ServiceInfo{
			Name:      item.Name,
			Namespace: item.Namespace,
			Ports:     item.Spec.Ports,
			Labels:    item.Labels,
			Type:      item.Spec.Type,
		})
	}

	sort.SliceStable(services, func(i, j int) bool {
		if services[i].Namespace != services[j].Namespace {
			return services[i].Namespace < services[j].Namespace
		}
		return services[i].Name < services[j].Name
	})
	return services, nil
}
