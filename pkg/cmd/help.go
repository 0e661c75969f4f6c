package cmd

const rootLong = `kportfwd - Kubernetes Port Forward Manager

A terminal UI for running kubectl port-forward sessions side by side.
Every tab is one forwarder: pick a context and a service from your
catalog, choose a bind address and connect. A forwarder whose kubectl
process dies is restarted with the same parameters until you disconnect.

Interactive Mode:
  Run without any command to start the TUI, where you can:
  - Press Ctrl+T to open a new forwarder tab and Ctrl+W to close one
  - Switch tabs with Ctrl+Right and Ctrl+Left
  - Move between fields with Tab and change choices with Left/Right
  - Press Enter to connect or disconnect the current tab
  - Press 'y' to copy a running forwarder's endpoint to the clipboard
  - Press Ctrl+R to reload contexts and Ctrl+X or Ctrl+C to quit

The catalog is read from ~/.config/kubernetes_port_forwarder/config.json
by default. YAML (.yaml, .yml) and SQLite (.db, .sqlite) catalogs are also
understood. Use 'discover' to generate catalog entries from a cluster.`

const rootExample = `  kportfwd                                     Start interactive TUI
  kportfwd --catalog ~/work/catalog.yaml       Start the TUI with another catalog
  kportfwd forward web --context staging       Forward one service without the TUI
  kportfwd discover --namespace 'shop-*' -y    Generate catalog entries
  kportfwd catalog prune --context staging     Remove services gone from staging`

const discoverExample = `  kportfwd discover --namespace 'my-app-*' --context staging
  kportfwd discover --namespace 'production-*' -y -o catalog.json
  kportfwd discover --context local --namespace '*' -v -o catalog.db`

const pruneLong = `Remove catalog entries for services that no longer exist in the cluster.

How it works:
  1. Discovers current services in the specified cluster/namespaces
  2. Compares them against the Service entries of your catalog
  3. Identifies entries whose service no longer exists
  4. Prompts for confirmation before removal (unless -y is used)

The catalog is shared by all contexts, so --context is required and only
the named context is checked: an entry may be stale there yet valid in
another cluster. Entries without a kind forward to pods and are never pruned.

Only JSON and SQLite catalogs can be pruned.`

const pruneExample = `  kportfwd catalog prune --context staging                        Prune against staging
  kportfwd catalog prune --context staging --namespace 'app-*'    Only consider app-* namespaces
  kportfwd catalog prune --context prod -y -v                     Auto-confirm with verbose output`
