package k8s

import (
	"strings"

	"github.com/xlttj/kportfwd/pkg/config"
)

// DefaultKubectl is the forwarding tool invoked when no path is configured.
const DefaultKubectl = "kubectl"

// Command is a ready-to-spawn port-forward invocation.
type Command struct {
	Argv  []string
	Label string // context[:namespace]:target, for display only
}

// String renders the argv for humans, quoting arguments that need it.
func (c Command) String() string {
	parts := make([]string, len(c.Argv))
	for i, arg := range c.Argv {
		parts[i] = shellQuote(arg)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// BuildCommand maps a service description onto a kubectl port-forward argv.
// The argument order follows kubectl's grammar:
//
//	kubectl port-forward --context C [--namespace N] [KIND/]TARGET --address A PORT[:SERVICEPORT]
func BuildCommand(kubectl, kubeContext string, svc config.ServiceDescription, address string) (Command, error) {
	if err := svc.Validate(); err != nil {
		return Command{}, err
	}
	if kubectl == "" {
		kubectl = DefaultKubectl
	}

	argv := []string{kubectl, "port-forward", "--context", kubeContext}
	label := []string{kubeContext}

	if svc.Namespace != "" {
		argv = append(argv, "--namespace", svc.Namespace)
		label = append(label, svc.Namespace)
	}

	target := svc.Target()
	if svc.Kind != "" {
		argv = append(argv, svc.Kind+"/"+target)
	} else {
		argv = append(argv, target)
	}
	label = append(label, target)

	ports := string(svc.Port)
	if svc.ServicePort != "" {
		ports += ":" + string(svc.ServicePort)
	}
	argv = append(argv, "--address", address, ports)

	return Command{Argv: argv, Label: strings.Join(label, ":")}, nil
}
