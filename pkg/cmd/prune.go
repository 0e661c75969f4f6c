package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/discovery"
)

var errPruneNeedsContext = errors.New("catalog prune needs an explicit --context: the catalog is shared by all contexts")

func newCatalogPruneCmd(opts *rootOptions) *cobra.Command {
	var (
		namespaceFilter string
		kubeContext     string
		acceptAll       bool
		verbose         bool
	)

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Remove catalog services that no longer exist in the cluster",
		Long:    pruneLong,
		Example: pruneExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if kubeContext == "" {
				return errPruneNeedsContext
			}
			path := opts.settings.Catalog
			ext := strings.ToLower(filepath.Ext(path))
			if !isSQLitePath(path) && ext != ".json" {
				return fmt.Errorf("cannot prune %s: only JSON and SQLite catalogs are supported", path)
			}

			catalog, err := config.LoadCatalog(path)
			if err != nil {
				return err
			}

			// Discover current services in the cluster
			result, err := discovery.DiscoverServices(cmd.Context(), discovery.Options{
				NamespaceFilter: namespaceFilter,
				Context:         kubeContext,
				Kubectl:         opts.settings.Kubectl,
			})
			if err != nil {
				return fmt.Errorf("error discovering services: %w", err)
			}
			fmt.Fprintf(out, "⚠️  The catalog is shared by all contexts; entries are only checked against %s.\n", kubeContext)
			if verbose {
				fmt.Fprintf(out, "Prune in context: %s, namespace filter: %s\n", contextDisplay(result.Context), namespaceFilter)
			}

			live := make([]discovery.ServiceInfo, 0, len(result.Services))
			for _, svc := range result.Services {
				live = append(live, svc.ServiceInfo)
			}
			stale := discovery.StaleEntries(catalog.All(), live, namespaceFilter)
			if len(stale) == 0 {
				fmt.Fprintf(out, "✅ No stale services to remove.\n")
				return nil
			}

			fmt.Fprintf(out, "Found %d stale service(s):\n", len(stale))
			for _, s := range stale {
				fmt.Fprintf(out, "  - %s (%s/%s:%s)\n", s.Name, s.Namespace, s.Target(), s.Port)
			}
			if !acceptAll {
				fmt.Fprint(out, "Delete these services from the catalog? [y/N]: ")
				resp, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				resp = strings.TrimSpace(strings.ToLower(resp))
				if resp != "y" && resp != "yes" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			deleted, err := deleteEntries(path, catalog, stale)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "🧹 Removed %d stale service(s).\n", deleted)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&namespaceFilter, "namespace", "*", "Namespace filter with wildcard support (e.g., 'my-app-*')")
	flags.StringVar(&kubeContext, "context", "", "Kubernetes context to check the catalog against (required)")
	flags.BoolVarP(&acceptAll, "yes", "y", false, "Delete without prompting")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	return cmd
}

// deleteEntries removes stale from the catalog stored at path and reports how
// many entries were removed.
func deleteEntries(path string, catalog *config.Catalog, stale []config.ServiceDescription) (int, error) {
	if isSQLitePath(path) {
		store, err := config.OpenSQLiteCatalogStore(path)
		if err != nil {
			return 0, err
		}
		defer store.Close()

		deleted := 0
		for _, s := range stale {
			if err := store.Delete(s.Name); err != nil {
				return deleted, fmt.Errorf("error deleting %s: %w", s.Name, err)
			}
			deleted++
		}
		return deleted, nil
	}

	drop := make(map[string]bool, len(stale))
	for _, s := range stale {
		drop[s.Name] = true
	}
	var keep []config.ServiceDescription
	for _, svc := range catalog.All() {
		if !drop[svc.Name] {
			keep = append(keep, svc)
		}
	}
	if err := config.WriteCatalogJSON(path, keep); err != nil {
		return 0, err
	}
	return len(stale), nil
}
