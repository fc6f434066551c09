// Command cognate-inspect prints a tenant's entity and alignment state for
// debugging resolution behavior.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/scrypster/cognate"
	"github.com/scrypster/cognate/internal/config"
	"github.com/scrypster/cognate/internal/snapshot"
)

var (
	configPath  = flag.String("config", "", "Path to config file (optional, uses env vars by default)")
	tenantID    = flag.String("tenant", "", "Tenant ID to inspect (required)")
	entityType  = flag.String("type", "", "Restrict entity listing to one type")
	recent      = flag.Int("recent", 20, "Number of recent alignments to show")
	snapshotDir = flag.String("snapshot", "", "Write a snapshot of the SQLite store to this directory and exit")
	restoreFrom = flag.String("restore", "", "Restore the SQLite store from this snapshot file and exit")
	keep        = flag.Int("keep", 10, "Snapshots to retain when pruning after -snapshot")
)

func main() {
	flag.Parse()

	cfg := config.LoadConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfigFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	if *snapshotDir != "" || *restoreFrom != "" {
		runSnapshot(cfg)
		return
	}

	if *tenantID == "" {
		fmt.Fprintln(os.Stderr, "usage: cognate-inspect -tenant <id> [-type <entity-type>] [-config <path>]")
		os.Exit(2)
	}

	ctx := context.Background()
	svc, err := cognate.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open service: %v", err)
	}
	defer svc.Close()

	stats, err := svc.EntityStats(ctx, *tenantID, *entityType)
	if err != nil {
		log.Fatalf("Failed to read entity stats: %v", err)
	}

	fmt.Printf("Tenant %s\n", *tenantID)
	fmt.Printf("  Entities:   %d\n", stats.TotalEntities)
	fmt.Printf("  Alignments: %d\n", stats.TotalAlignments)

	entityTypes := make([]string, 0, len(stats.EntitiesByType))
	for t := range stats.EntitiesByType {
		entityTypes = append(entityTypes, t)
	}
	sort.Strings(entityTypes)
	for _, t := range entityTypes {
		fmt.Printf("    %-20s %d\n", t, stats.EntitiesByType[t])
	}

	alignments, err := svc.Store().ListRecentAlignments(ctx, *tenantID, *recent)
	if err != nil {
		log.Fatalf("Failed to list alignments: %v", err)
	}

	if len(alignments) > 0 {
		fmt.Printf("\nRecent alignments:\n")
		for _, a := range alignments {
			fmt.Printf("  %s %s.%s -> %s (%s, %q)\n",
				a.AlignedAt.Format("2006-01-02 15:04"),
				a.MemoryKey, a.FieldPath, a.EntityID, a.Confidence, a.OriginalValue)
		}
	}
}

// runSnapshot handles the -snapshot and -restore modes, which operate on
// the closed SQLite store file directly.
func runSnapshot(cfg *config.Config) {
	if cfg.Storage.Engine != "sqlite" && cfg.Storage.Engine != "" {
		log.Fatalf("Snapshots are only supported for the sqlite engine, not %q", cfg.Storage.Engine)
	}

	if *restoreFrom != "" {
		if err := snapshot.Restore(*restoreFrom, cfg.Storage.DSN); err != nil {
			log.Fatalf("Failed to restore: %v", err)
		}
		fmt.Printf("Restored %s from %s\n", cfg.Storage.DSN, *restoreFrom)
		return
	}

	path, err := snapshot.Create(cfg.Storage.DSN, *snapshotDir)
	if err != nil {
		log.Fatalf("Failed to snapshot: %v", err)
	}
	removed, err := snapshot.Prune(*snapshotDir, *keep)
	if err != nil {
		log.Fatalf("Failed to prune old snapshots: %v", err)
	}
	fmt.Printf("Wrote %s (pruned %d)\n", path, removed)
}
