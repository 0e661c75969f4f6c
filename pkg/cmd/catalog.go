package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xlttj/kportfwd/pkg/config"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the service catalog",
	}
	cmd.AddCommand(newCatalogImportCmd(), newCatalogPruneCmd(opts))
	return cmd
}

func newCatalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <src> <dst.db>",
		Short: "Copy a JSON or YAML catalog into a SQLite catalog",
		Long: `Copy every entry of a JSON or YAML catalog into a SQLite catalog.
Entries already in the destination with the same name are replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]
			if !isSQLitePath(dst) {
				return fmt.Errorf("destination %s must be a .db, .sqlite or .sqlite3 file", dst)
			}

			catalog, err := config.LoadCatalog(src)
			if err != nil {
				return err
			}
			if catalog.Len() == 0 {
				return fmt.Errorf("no services found in %s", src)
			}

			store, err := config.OpenSQLiteCatalogStore(dst)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Put(catalog.All()...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "💾 Imported %d service(s) into %s\n", catalog.Len(), dst)
			return nil
		},
	}
}

func isSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}
