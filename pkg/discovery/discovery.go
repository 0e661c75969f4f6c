package discovery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/logging"
)

// ErrSelectionCancelled is returned when the user quits the selection prompt.
var ErrSelectionCancelled = errors.New("user cancelled selection")

// RunDiscovery orchestrates the complete discovery process: list services,
// let the user pick, then write the generated catalog entries. Prompts are
// read from in and progress is written to out.
func RunDiscovery(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	logging.LogDebug("Running discovery with options: %+v", opts)

	// Step 1: Discover services
	result, err := DiscoverServices(ctx, opts)
	if err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	if result.TotalCount == 0 {
		fmt.Fprintf(out, "🔍 No services found matching criteria.\n")
		fmt.Fprintf(out, "   Context: %s\n", result.Context)
		fmt.Fprintf(out, "   Namespace filter: %s\n", result.NamespaceFilter)
		return nil
	}

	fmt.Fprintf(out, "🔍 Found %d service(s) in context '%s'\n\n", result.TotalCount, result.Context)

	// Step 2: Select services
	if err := selectServices(result, opts, in, out); err != nil {
		return fmt.Errorf("service selection failed: %w", err)
	}

	if result.SelectedCount == 0 {
		fmt.Fprintf(out, "No services selected. Exiting.\n")
		return nil
	}

	// Step 3: Generate and output the catalog
	entries := GenerateCatalog(result.Selected(), opts.BasePort)
	if err := outputCatalog(entries, opts, out); err != nil {
		return fmt.Errorf("catalog output failed: %w", err)
	}
	return nil
}

// selectServices handles the interactive selection process
func selectServices(result *DiscoveryResult, opts Options, in io.Reader, out io.Writer) error {
	if opts.AcceptAll {
		for i := range result.Services {
			result.Services[i].Selected = true
		}
		result.SelectedCount = len(result.Services)
		if opts.Verbose {
			fmt.Fprintf(out, "✅ Auto-selected all %d services (--accept-all enabled)\n\n", result.SelectedCount)
		}
		return nil
	}

	reader := bufio.NewReader(in)

	fmt.Fprintf(out, "Select services to include in your catalog:\n")
	fmt.Fprintf(out, "(Press Enter for [Y]es, 'n' for No, 'a' for All remaining, 'q' to Quit)\n\n")

	for i := 0; i < len(result.Services); i++ {
		service := &result.Services[i]
		printService(out, service.ServiceInfo)

		fmt.Fprintf(out, "\n❓ Include this service? [Y/n/a/q]: ")
		response, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || response == "") {
			return fmt.Errorf("failed to read user input: %w", err)
		}

		switch strings.TrimSpace(strings.ToLower(response)) {
		case "", "y", "yes":
			service.Selected = true
			result.SelectedCount++
			fmt.Fprintf(out, "✅ Added: %s/%s\n\n", service.ServiceInfo.Namespace, service.ServiceInfo.Name)

		case "n", "no":
			fmt.Fprintf(out, "⏭️  Skipped: %s/%s\n\n", service.ServiceInfo.Namespace, service.ServiceInfo.Name)

		case "a", "all":
			for j := i; j < len(result.Services); j++ {
				result.Services[j].Selected = true
				result.SelectedCount++
				fmt.Fprintf(out, "✅ Added: %s/%s\n", result.Services[j].ServiceInfo.Namespace, result.Services[j].ServiceInfo.Name)
			}
			fmt.Fprintf(out, "\n🎯 Selected all remaining services (%d total selected)\n\n", result.SelectedCount)
			i = len(result.Services)

		case "q", "quit":
			fmt.Fprintf(out, "👋 Selection cancelled.\n")
			return ErrSelectionCancelled

		default:
			fmt.Fprintf(out, "❌ Invalid response '%s'. Please use y/n/a/q.\n", strings.TrimSpace(response))
			i-- // retry this service
		}
	}

	fmt.Fprintf(out, "📊 Selection complete: %d out of %d services selected.\n\n", result.SelectedCount, result.TotalCount)
	return nil
}

func printService(out io.Writer, service ServiceInfo) {
	fmt.Fprintf(out, "🔧 Service: %s\n", service.Name)
	fmt.Fprintf(out, "   Namespace: %s\n", service.Namespace)
	fmt.Fprintf(out, "   Type: %s\n", service.Type)

	ports := make([]string, 0, len(service.Ports))
	for _, port := range service.Ports {
		desc := fmt.Sprintf("%d", port.Port)
		if port.Name != "" {
			desc += "(" + port.Name + ")"
		}
		if port.TargetPort.String() != "0" && port.TargetPort.String() != "" {
			desc += "->" + port.TargetPort.String()
		}
		if port.Protocol != "" && port.Protocol != "TCP" {
			desc += " [" + string(port.Protocol) + "]"
		}
		ports = append(ports, desc)
	}
	fmt.Fprintf(out, "   Ports: %s\n", strings.Join(ports, ", "))

	if app, ok := service.Labels["app.kubernetes.io/name"]; ok {
		fmt.Fprintf(out, "   App: %s\n", app)
	} else if app, ok := service.Labels["app"]; ok {
		fmt.Fprintf(out, "   App: %s\n", app)
	}
}

// outputCatalog writes the entries to the output file, choosing the format
// by extension, or prints catalog JSON to out.
func outputCatalog(entries []config.ServiceDescription, opts Options, out io.Writer) error {
	if len(entries) == 0 {
		fmt.Fprintf(out, "No catalog entries to generate.\n")
		return nil
	}

	if opts.OutputFile == "" {
		data, err := config.MarshalCatalogJSON(entries)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	if err := writeCatalog(opts.OutputFile, entries); err != nil {
		return err
	}
	fmt.Fprintf(out, "💾 Catalog saved to: %s\n", opts.OutputFile)
	fmt.Fprintf(out, "📋 Generated %d catalog entries\n", len(entries))
	return nil
}

func writeCatalog(path string, entries []config.ServiceDescription) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		store, err := config.OpenSQLiteCatalogStore(path)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Put(entries...)
	default:
		return config.WriteCatalogJSON(path, entries)
	}
}
