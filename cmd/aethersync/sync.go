package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spetr/aethersync/internal/config"
	"github.com/spetr/aethersync/internal/relational"
	"github.com/spetr/aethersync/internal/schema"
	"github.com/spetr/aethersync/internal/syncer"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

var followSync bool

var syncCmd = &cobra.Command{
	Use:   "sync [queue...]",
	Short: "Drain the sync queues into MongoDB",
	Long: `Claim PENDING jobs from the customer, product and review sync queues,
upsert the mapped documents and mark each job COMPLETED or FAILED.

With --follow the queues are drained every poll interval until interrupted,
and edits to the config file change the queues and interval in place.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSync(args)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [entity...]",
	Short: "Copy every customer, product and review into MongoDB",
	Long: `Load every row of the base tables into the document store. Existing
documents keep their document-only fields; reruns update in place.`,
	Run: func(cmd *cobra.Command, args []string) {
		runMigrate(args)
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue [queue...]",
	Short: "Return FAILED sync jobs to PENDING",
	Run: func(cmd *cobra.Command, args []string) {
		runRequeue(args)
	},
}

func initSyncCommands() {
	syncCmd.Flags().BoolVarP(&followSync, "follow", "f", false, "keep draining every poll interval")
	rootCmd.AddCommand(syncCmd, migrateCmd, requeueCmd)
}

// openSyncer opens both stores and adds the claim columns to queues.
func openSyncer(ctx context.Context, cfg *config.Config, queues []types.Entity) (*syncer.Syncer, *relational.Store, provider.DocumentStore) {
	store, err := openRelational(ctx, cfg)
	if err != nil {
		fail("failed to open relational store", err)
	}

	g := schema.New(store, cfg.Embedding.Dimensions, nil)
	for _, q := range queues {
		added, err := g.EnsureQueue(ctx, q)
		if err != nil {
			store.Close()
			fail("failed to prepare sync queue", err)
		}
		if len(added) > 0 {
			slog.Info("sync queue prepared", "queue", types.TableFor(q).QueueTable, "added", added)
		}
	}

	docs, err := openDocuments(ctx, cfg)
	if err != nil {
		store.Close()
		fail("failed to open document store", err)
	}

	s := syncer.New(syncer.Config{
		Queue:        store,
		Documents:    docs,
		WorkerID:     cfg.Sync.WorkerID,
		LeaseTimeout: cfg.Sync.LeaseTimeout,
	})
	return s, store, docs
}

func runSync(args []string) {
	cfg := loadConfig()
	queues := entitiesArg(args, cfg.Sync.Queues)

	ctx, cancel := signalContext()
	defer cancel()

	s, store, docs := openSyncer(ctx, cfg, queues)
	defer store.Close()
	defer docs.Close(context.Background())

	slog.Info("sync worker ready", "worker", s.WorkerID(), "documents", docs.Name())

	if !followSync {
		reports, err := s.DrainAll(ctx, queues)
		printDrainReports(reports)
		if err != nil {
			fail("sync failed", err)
		}
		for _, r := range reports {
			if r.Failed > 0 {
				os.Exit(1)
			}
		}
		return
	}

	err := s.Follow(ctx, syncer.FollowConfig{
		Settings: syncer.FollowSettings{
			Queues:   queues,
			Interval: cfg.Sync.PollInterval,
		},
		ConfigPath: configPath(),
		Reload: func() (syncer.FollowSettings, error) {
			next, _, err := config.Load(cfgFile)
			if err != nil {
				return syncer.FollowSettings{}, err
			}
			qs := queues
			if len(args) == 0 {
				if qs, err = config.Entities(next.Sync.Queues); err != nil {
					return syncer.FollowSettings{}, err
				}
			}
			return syncer.FollowSettings{Queues: qs, Interval: next.Sync.PollInterval}, nil
		},
		OnDrain: printDrainReports,
	})
	if err != nil && ctx.Err() == nil {
		fail("follow mode stopped", err)
	}
	fmt.Println("Sync worker stopped.")
}

func printDrainReports(reports []*syncer.DrainReport) {
	for _, r := range reports {
		if r.Selected == 0 && r.Released == 0 {
			continue
		}
		fmt.Printf("%s: %d selected, %d completed, %d failed, %d skipped",
			types.TableFor(r.Queue).QueueTable, r.Selected, r.Completed, r.Failed, r.Skipped)
		if r.Released > 0 {
			fmt.Printf(", %d expired claims released", r.Released)
		}
		fmt.Printf(" (%s)\n", r.Duration.Round(1e6))
		if len(r.FailedJobs) > 0 {
			fmt.Printf("  failed jobs: %s\n", joinIDs(r.FailedJobs))
		}
	}
}

func runMigrate(args []string) {
	cfg := loadConfig()
	entities := entitiesArg(args, cfg.Pipeline.Entities)

	ctx, cancel := signalContext()
	defer cancel()

	s, store, docs := openSyncer(ctx, cfg, nil)
	defer store.Close()
	defer docs.Close(context.Background())

	failed := false
	for _, e := range entities {
		rep, err := s.Backfill(ctx, e)
		if err != nil {
			fail("migration failed", err)
		}
		fmt.Printf("%s: %d rows, %d inserted, %d updated, %d failed (%s)\n",
			rep.Entity, rep.Rows, rep.Inserted, rep.Updated, len(rep.FailedIDs), rep.Duration.Round(1e6))
		if len(rep.FailedIDs) > 0 {
			fmt.Printf("  failed ids: %s\n", joinIDs(rep.FailedIDs))
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func runRequeue(args []string) {
	cfg := loadConfig()
	queues := entitiesArg(args, cfg.Sync.Queues)

	ctx, cancel := signalContext()
	defer cancel()

	s, store, docs := openSyncer(ctx, cfg, queues)
	defer store.Close()
	defer docs.Close(context.Background())

	for _, q := range queues {
		n, err := s.Requeue(ctx, q)
		if err != nil {
			fail("requeue failed", err)
		}
		fmt.Printf("%s: %d jobs returned to %s\n", types.TableFor(q).QueueTable, n, types.JobPending)
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
