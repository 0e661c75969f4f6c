package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/logging"
	"github.com/xlttj/kportfwd/pkg/session"
	"github.com/xlttj/kportfwd/pkg/ui"
)

var version = "dev"

// SetVersion sets the version reported by `kportfwd version` and --version.
func SetVersion(v string) {
	version = v
}

// rootOptions are the persistent flags plus the settings they resolve to.
type rootOptions struct {
	settingsPath  string
	catalogPath   string
	kubectl       string
	logFile       string
	contextSource string
	kubeconfig    string
	stopTimeout   time.Duration
	debug         bool

	settings config.Settings
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "kportfwd",
		Short:   "Manage kubectl port-forward sessions from a terminal UI",
		Long:    rootLong,
		Example: rootExample,
		Version: version,
		// Errors are reported by us; usage is only useful for flag mistakes.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Close()
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(opts)
		},
	}
	cmd.SetVersionTemplate(`{{printf "kportfwd version %s\n" .Version}}`)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.settingsPath, "settings", config.DefaultSettingsPath, "Settings file")
	flags.StringVar(&opts.catalogPath, "catalog", "", "Service catalog (.json, .yaml or .db); overrides the settings file")
	flags.StringVar(&opts.kubectl, "kubectl", "", "kubectl binary to run")
	flags.StringVar(&opts.logFile, "log-file", "", "Application log file")
	flags.StringVar(&opts.contextSource, "context-source", "", "Where contexts are read from: kubectl or kubeconfig")
	flags.StringVar(&opts.kubeconfig, "kubeconfig", "", "Kubeconfig file used with --context-source kubeconfig")
	flags.DurationVar(&opts.stopTimeout, "stop-timeout", 0, "How long a forwarder may take to stop before it is killed")
	flags.BoolVar(&opts.debug, "debug", false, "Log process commands and stop steps")

	cmd.AddCommand(
		newContextsCmd(opts),
		newServicesCmd(opts),
		newForwardCmd(opts),
		newDiscoverCmd(opts),
		newCatalogCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

// setup loads the settings file, applies flag overrides and opens the log.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	settings, err := config.LoadSettings(o.settingsPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("catalog") {
		settings.Catalog = o.catalogPath
	}
	if flags.Changed("kubectl") {
		settings.Kubectl = o.kubectl
	}
	if flags.Changed("log-file") {
		settings.LogFile = o.logFile
	}
	if flags.Changed("context-source") {
		settings.ContextSource = o.contextSource
	}
	if flags.Changed("kubeconfig") {
		settings.Kubeconfig = o.kubeconfig
	}
	if flags.Changed("stop-timeout") {
		settings.StopTimeout = o.stopTimeout
	}
	if flags.Changed("debug") {
		settings.Debug = o.debug
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	o.settings = settings

	if err := logging.Init(settings.LogFile, settings.Debug); err != nil {
		return err
	}
	logging.LogDebug("Running %q with settings %+v", cmd.CommandPath(), settings)
	return nil
}

func (o *rootOptions) directory() k8s.Directory {
	if o.settings.ContextSource == config.ContextSourceKubeconfig {
		return k8s.KubeconfigDirectory{ExplicitPath: o.settings.Kubeconfig}
	}
	return k8s.KubectlDirectory{Kubectl: o.settings.Kubectl}
}

func (o *rootOptions) sessionOptions() session.Options {
	return session.Options{
		Debug:       o.settings.Debug,
		StopTimeout: o.settings.StopTimeout,
		Kubectl:     o.settings.Kubectl,
	}
}

// shutdownTimeout bounds ShutdownAll: one stop timeout plus a kill grace.
func (o *rootOptions) shutdownTimeout() time.Duration {
	return 2*o.settings.StopTimeout + time.Second
}

// resolveContext returns name, or the directory's active context when name
// is empty.
func (o *rootOptions) resolveContext(ctx context.Context, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	list, err := o.directory().ListContexts(ctx)
	if err != nil {
		return "", err
	}
	if list.Active == "" {
		return "", fmt.Errorf("no active context; pass --context")
	}
	return list.Active, nil
}

func runTUI(opts *rootOptions) error {
	catalog, err := config.LoadCatalog(opts.settings.Catalog)
	if err != nil {
		return err
	}
	logging.LogInfo("Starting TUI with %d services from %s", catalog.Len(), catalog.Source())

	model := ui.NewModel(ui.Deps{
		Registry:  session.NewRegistry(catalog, k8s.ExecSpawner{}),
		Catalog:   catalog,
		Directory: opts.directory(),
		Settings:  opts.settings,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	model.Cleanup()
	if err != nil {
		return fmt.Errorf("TUI failed: %w", err)
	}
	return nil
}
