package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	nameStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func newContextsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List the cluster contexts forwarders can use",
		Long: `List the cluster contexts known to kubectl (or the kubeconfig, with
--context-source kubeconfig). The active context is marked with '*'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := opts.directory().ListContexts(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list.Names) == 0 {
				fmt.Fprintln(out, "No contexts found.")
				return nil
			}
			for _, name := range list.Names {
				if name == list.Active {
					fmt.Fprintf(out, "* %s\n", activeStyle.Render(name))
				} else {
					fmt.Fprintf(out, "  %s\n", name)
				}
			}
			return nil
		},
	}
}
