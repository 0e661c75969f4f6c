package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xlttj/kportfwd/pkg/discovery"
)

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	d := discovery.Options{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover Kubernetes services and generate catalog entries",
		Long: `Discover Kubernetes services and generate catalog entries.

Services are listed with kubectl in the given context and namespaces. Each
service port becomes one entry; remote ports below 1024 are mapped to local
ports starting at --base-port. Entries are printed as catalog JSON, or
written to -o (JSON, or SQLite for .db files).`,
		Example: discoverExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d.Kubectl = opts.settings.Kubectl
			out := cmd.OutOrStdout()

			if d.Verbose {
				fmt.Fprintf(out, "🔍 Starting service discovery...\n")
				fmt.Fprintf(out, "   Context: %s\n", contextDisplay(d.Context))
				fmt.Fprintf(out, "   Namespace filter: %s\n", d.NamespaceFilter)
				fmt.Fprintf(out, "   Accept all: %v\n", d.AcceptAll)
				fmt.Fprintf(out, "   Output: %s\n\n", outputDisplay(d.OutputFile))
			}

			err := discovery.RunDiscovery(cmd.Context(), d, cmd.InOrStdin(), out)
			if errors.Is(err, discovery.ErrSelectionCancelled) {
				return nil
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&d.NamespaceFilter, "namespace", "*", "Namespace filter with wildcard support (e.g., 'my-app-*')")
	flags.StringVar(&d.Context, "context", "", "Kubernetes context to use (defaults to current context)")
	flags.StringVarP(&d.OutputFile, "output", "o", "", "Output file (defaults to stdout)")
	flags.BoolVarP(&d.AcceptAll, "yes", "y", false, "Accept all discovered services without prompting")
	flags.BoolVarP(&d.Verbose, "verbose", "v", false, "Verbose output")
	flags.IntVar(&d.BasePort, "base-port", discovery.DefaultBasePort, "First local port for remote ports below 1024")
	return cmd
}

func contextDisplay(context string) string {
	if context == "" {
		return "(current context)"
	}
	return context
}

func outputDisplay(outputFile string) string {
	if outputFile == "" {
		return "stdout"
	}
	return outputFile
}
