package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hemanttanawade-debug/drive-migration/internal/coordinator"
	"github.com/hemanttanawade-debug/drive-migration/internal/engine"
	"github.com/hemanttanawade-debug/drive-migration/internal/logging"
	"github.com/hemanttanawade-debug/drive-migration/internal/metrics"
	"github.com/hemanttanawade-debug/drive-migration/internal/remote"
	"github.com/hemanttanawade-debug/drive-migration/internal/report"
)

func newMigrateCmd() *cobra.Command {
	var mappingPath string
	var includeSuspended bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run a full migration over all mapped principals",
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
			return runMigration(ctx, a, mapping)
		},
	}
	cmd.Flags().StringVar(&mappingPath, "mapping", "", "CSV file of source,dest principal pairs (default: derive from directory)")
	cmd.Flags().BoolVar(&includeSuspended, "include-suspended", false, "include suspended and archived principals")
	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted or partially failed migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Metrics.Enabled {
				srv := metrics.Serve(a.cfg.Metrics.Listen)
				defer srv.Shutdown(context.Background())
			}

			c := coordinator.New(a.ledger, migratorFactory(a), a.cfg.Transfer.Workers)
			summary, err := c.Resume(ctx, a.cfg.Transfer.MaxAttempts, mustConfigJSON(a))
			if err != nil {
				return err
			}
			return finishRun(ctx, a, summary)
		},
	}
}

func runMigration(ctx context.Context, a *app, mapping map[string]string) error {
	if a.cfg.Metrics.Enabled {
		srv := metrics.Serve(a.cfg.Metrics.Listen)
		defer srv.Shutdown(context.Background())
	}

	c := coordinator.New(a.ledger, migratorFactory(a), a.cfg.Transfer.Workers)
	summary, err := c.Run(ctx, mapping, mustConfigJSON(a))
	if err != nil {
		return err
	}
	return finishRun(ctx, a, summary)
}

func finishRun(ctx context.Context, a *app, summary *coordinator.RunSummary) error {
	objects, err := a.ledger.AllObjects(ctx)
	if err != nil {
		return fmt.Errorf("load object inventory: %w", err)
	}
	keys, err := report.Publish(ctx, a.store, summary, objects)
	if err != nil {
		return fmt.Errorf("publish run reports: %w", err)
	}

	fmt.Printf("run %d %s: %d principals, %d completed, %d failed, %d skipped\n",
		summary.RunID, summary.Status,
		summary.Principals, summary.Completed, summary.Failed, summary.Skipped)
	fmt.Printf("objects: %d transferred, %d failed, %d skipped (%d bytes)\n",
		summary.Objects.Completed, summary.Objects.Failed, summary.Objects.Skipped, summary.Bytes)
	for _, key := range keys {
		fmt.Println("report:", key)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d principals failed", summary.Failed, summary.Principals)
	}
	return nil
}

func migratorFactory(a *app) coordinator.MigratorFactory {
	return func(runID int64) coordinator.PrincipalMigrator {
		return engine.New(a.source, a.dest, a.ledger, a.store, engine.Options{
			RunID:          runID,
			DomainMap:      a.cfg.DomainMap(),
			MaxObjectSize:  a.cfg.Transfer.MaxObjectSizeMB << 20,
			Throttle:       time.Duration(a.cfg.Transfer.ThrottleDelayMs) * time.Millisecond,
			Retry:          retryPolicy(a),
			ExportFallback: a.cfg.Transfer.ExportFallback,
			Identity:       a.ident,
		})
	}
}

func retryPolicy(a *app) remote.RetryPolicy {
	return remote.RetryPolicy{
		MaxAttempts:    a.cfg.Transfer.MaxAttempts,
		InitialBackoff: time.Duration(a.cfg.Transfer.RetryBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(a.cfg.Transfer.RetryMaxDelayMs) * time.Millisecond,
	}
}

func mustConfigJSON(a *app) []byte {
	data, err := json.Marshal(a.cfg)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// buildMapping produces the source-to-destination principal mapping,
// either from an explicit CSV file or by deriving it from the source
// tenant directory. Pairs whose principals do not exist on both sides
// are dropped with a warning.
func buildMapping(ctx context.Context, a *app, mappingPath string, includeSuspended bool) (map[string]string, error) {
	var mapping map[string]string
	var err error
	if mappingPath != "" {
		mapping, err = readMappingFile(mappingPath)
	} else {
		mapping, err = directoryMapping(ctx, a, includeSuspended)
	}
	if err != nil {
		return nil, err
	}
	if len(mapping) == 0 {
		return nil, fmt.Errorf("principal mapping is empty")
	}
	return verifyMapping(ctx, a, mapping)
}

func readMappingFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse mapping file %s: %w", path, err)
	}

	mapping := make(map[string]string, len(rows))
	for i, row := range rows {
		if len(row) != 2 {
			return nil, fmt.Errorf("mapping file %s line %d: want source,dest", path, i+1)
		}
		src, dst := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if src == "" || dst == "" {
			return nil, fmt.Errorf("mapping file %s line %d: empty principal", path, i+1)
		}
		mapping[src] = dst
	}
	return mapping, nil
}

func directoryMapping(ctx context.Context, a *app, includeSuspended bool) (map[string]string, error) {
	dir, ok := a.source.(remote.Directory)
	if !ok {
		return nil, fmt.Errorf("driver %q has no directory listing; use --mapping", a.cfg.Remote.Driver)
	}
	principals, err := dir.ListPrincipals(ctx, a.cfg.SourceDomain)
	if err != nil {
		return nil, fmt.Errorf("list source principals: %w", err)
	}

	mapping := make(map[string]string, len(principals))
	for _, p := range principals {
		if !includeSuspended && (p.Suspended || p.Archived) {
			continue
		}
		local, _, found := strings.Cut(p.Email, "@")
		if !found {
			continue
		}
		mapping[p.Email] = local + "@" + a.cfg.DestDomain
	}
	return mapping, nil
}

func verifyMapping(ctx context.Context, a *app, mapping map[string]string) (map[string]string, error) {
	log := logging.Component("mapping")
	verified := make(map[string]string, len(mapping))
	for src, dst := range mapping {
		ok, err := a.source.ExistsPrincipal(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("verify source principal %s: %w", src, err)
		}
		if !ok {
			log.Warn("dropping pair: source principal not found", "source", src)
			continue
		}
		ok, err = a.dest.ExistsPrincipal(ctx, dst)
		if err != nil {
			return nil, fmt.Errorf("verify destination principal %s: %w", dst, err)
		}
		if !ok {
			log.Warn("dropping pair: destination principal not found", "source", src, "dest", dst)
			continue
		}
		verified[src] = dst
	}
	if len(verified) == 0 {
		return nil, fmt.Errorf("no mapping pair passed principal verification")
	}
	return verified, nil
}
