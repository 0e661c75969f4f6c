package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/logging"
)

func newServicesCmd(opts *rootOptions) *cobra.Command {
	var kubeContext, address string

	cmd := &cobra.Command{
		Use:   "services",
		Short: "List catalog services and the command each one runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := config.LoadCatalog(opts.settings.Catalog)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if catalog.Len() == 0 {
				fmt.Fprintf(out, "No services in %s\n", catalog.Source())
				return nil
			}

			resolved, err := opts.resolveContext(cmd.Context(), kubeContext)
			if err != nil {
				logging.LogError("Resolve context: %v", err)
				resolved = "<context>"
			}
			if address == "" {
				address = opts.settings.DefaultAddress
			}

			for _, svc := range catalog.All() {
				fmt.Fprintf(out, "%s\n", nameStyle.Render(svc.Name))
				built, err := k8s.BuildCommand(opts.settings.Kubectl, resolved, svc, address)
				if err != nil {
					fmt.Fprintf(out, "  %s\n", err)
					continue
				}
				fmt.Fprintf(out, "  %s\n", dimStyle.Render("$ "+built.String()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kubeContext, "context", "", "Context to build commands for (defaults to the active context)")
	cmd.Flags().StringVar(&address, "address", "", "Bind address (defaults to the settings' default address)")
	return cmd
}
