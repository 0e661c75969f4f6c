package k8s

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xlttj/kportfwd/pkg/logging"

	"k8s.io/client-go/tools/clientcmd"
)

// ErrContextQuery is matched by every ContextQueryError.
var ErrContextQuery = errors.New("context query failed")

// ContextQueryError reports a failure to enumerate cluster contexts.
// Callers treat it as "no contexts available".
type ContextQueryError struct {
	Err error
}

func (e *ContextQueryError) Error() string {
	return fmt.Sprintf("list contexts: %v", e.Err)
}

func (e *ContextQueryError) Unwrap() error { return e.Err }

func (e *ContextQueryError) Is(target error) bool { return target == ErrContextQuery }

// ContextList is the deduplicated, sorted set of context names plus the
// active one (empty when none is marked).
type ContextList struct {
	Names  []string
	Active string
}

// ActiveIndex returns the position of the active context, or 0.
func (l ContextList) ActiveIndex() int {
	for i, name := range l.Names {
		if name == l.Active {
			return i
		}
	}
	return 0
}

// Directory enumerates cluster contexts.
type Directory interface {
	ListContexts(ctx context.Context) (ContextList, error)
}

// KubectlDirectory asks `kubectl config get-contexts --no-headers`.
type KubectlDirectory struct {
	Kubectl string
}

// ListContexts runs kubectl and parses its table.
func (d KubectlDirectory) ListContexts(ctx context.Context) (ContextList, error) {
	kubectl := d.Kubectl
	if kubectl == "" {
		kubectl = DefaultKubectl
	}
	out, err := RunKubectlFn(ctx, kubectl, "config", "get-contexts", "--no-headers")
	if err != nil {
		logging.LogError("Context query failed: %v", err)
		return ContextList{}, &ContextQueryError{Err: err}
	}
	return ParseContexts(string(out))
}

// ParseContexts reads get-contexts rows. The active row starts with a "*"
// sentinel; the name is the first column after it.
func ParseContexts(output string) (ContextList, error) {
	var list ContextList
	seen := make(map[string]bool)

	for i, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		active := false
		name := fields[0]
		if strings.HasPrefix(name, "*") {
			active = true
			name = strings.TrimPrefix(name, "*")
			if name == "" {
				if len(fields) < 2 {
					return ContextList{}, &ContextQueryError{Err: fmt.Errorf("line %d: active marker without context name", i+1)}
				}
				name = fields[1]
			}
		}

		if active {
			list.Active = name
		}
		if !seen[name] {
			seen[name] = true
			list.Names = append(list.Names, name)
		}
	}

	sort.Strings(list.Names)
	return list, nil
}

// KubeconfigDirectory reads contexts straight from the kubeconfig files,
// following the same loading rules as kubectl (KUBECONFIG, ~/.kube/config).
type KubeconfigDirectory struct {
	// ExplicitPath overrides the loading rules when set.
	ExplicitPath string
}

// ListContexts loads the merged kubeconfig.
func (d KubeconfigDirectory) ListContexts(_ context.Context) (ContextList, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if d.ExplicitPath != "" {
		rules.ExplicitPath = d.ExplicitPath
	}
	cfg, err := rules.Load()
	if err != nil {
		logging.LogError("Kubeconfig load failed: %v", err)
		return ContextList{}, &ContextQueryError{Err: err}
	}

	list := ContextList{Active: cfg.CurrentContext}
	for name := range cfg.Contexts {
		list.Names = append(list.Names, name)
	}
	sort.Strings(list.Names)
	if _, ok := cfg.Contexts[list.Active]; !ok {
		list.Active = ""
	}
	return list, nil
}
