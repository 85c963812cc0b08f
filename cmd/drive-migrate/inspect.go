package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hemanttanawade-debug/drive-migration/internal/report"
)

func newDryRunCmd() *cobra.Command {
	var mappingPath string
	var includeSuspended bool

	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Build and verify the principal mapping without migrating anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			mapping, err := buildMapping(ctx, a, mappingPath, includeSuspended)
			if err != nil {
				return err
			}

			sources := make([]string, 0, len(mapping))
			for src := range mapping {
				sources = append(sources, src)
			}
			sort.Strings(sources)

			fmt.Printf("%d principals would migrate:\n", len(sources))
			for _, src := range sources {
				fmt.Printf("  %s -> %s\n", src, mapping[src])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mappingPath, "mapping", "", "CSV file of source,dest principal pairs")
	cmd.Flags().BoolVar(&includeSuspended, "include-suspended", false, "include suspended and archived principals")
	return cmd
}

func newValidateSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-setup",
		Short: "Check ledger, artifact store and tenant connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.ledger.OverallProgress(ctx); err != nil {
				return fmt.Errorf("ledger check: %w", err)
			}
			fmt.Println("ledger: ok")

			probe := a.store.ReportKey(0, "setup_probe")
			if err := a.store.WriteDocument(ctx, probe, []byte("ok"), "text/plain"); err != nil {
				return fmt.Errorf("artifact store check: %w", err)
			}
			fmt.Println("artifact store: ok")

			if _, err := a.source.ExistsPrincipal(ctx, "probe@"+a.cfg.SourceDomain); err != nil {
				return fmt.Errorf("source tenant check: %w", err)
			}
			fmt.Println("source tenant: ok")

			if _, err := a.dest.ExistsPrincipal(ctx, "probe@"+a.cfg.DestDomain); err != nil {
				return fmt.Errorf("destination tenant check: %w", err)
			}
			fmt.Println("destination tenant: ok")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger progress counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			progress, err := a.ledger.OverallProgress(ctx)
			if err != nil {
				return err
			}
			fmt.Print(report.RenderProgress(progress))
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Export the full ledger state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			progress, err := a.ledger.OverallProgress(ctx)
			if err != nil {
				return err
			}
			principals, err := a.ledger.Principals(ctx)
			if err != nil {
				return err
			}
			failed, err := a.ledger.FailedObjects(ctx, "")
			if err != nil {
				return err
			}

			state := map[string]any{
				"progress":       progress,
				"principals":     principals,
				"failed_objects": failed,
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}
}
