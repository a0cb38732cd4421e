package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spetr/aethersync/internal/pipeline"
	"github.com/spetr/aethersync/internal/prompt"
	"github.com/spetr/aethersync/internal/schema"
	"github.com/spetr/aethersync/pkg/types"
)

var guardCmd = &cobra.Command{
	Use:   "guard [entity...]",
	Short: "Prepare tables for embedding and sync",
	Long: `Remove partitioning, add the vector columns and the sync queue claim
columns, and build vector indexes on fully embedded tables. Clearing a
pre-existing vector column asks for confirmation unless --yes is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		runGuard(args)
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed [entity...]",
	Short: "Embed pending customers, products and reviews",
	Long: `Embed every row whose vector column is still NULL and store the vectors in
batches. Interrupted runs resume where the last committed batch ended.`,
	Run: func(cmd *cobra.Command, args []string) {
		runEmbed(args)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [entity...]",
	Short: "Build vector indexes on fully embedded tables",
	Run: func(cmd *cobra.Command, args []string) {
		runIndex(args)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show embedding progress and sync queue depth",
	Run: func(cmd *cobra.Command, args []string) {
		runStatus()
	},
}

func initEmbedCommands() {
	embedCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(guardCmd, embedCmd, indexCmd, statusCmd)
}

func runGuard(args []string) {
	cfg := loadConfig()
	entities := entitiesArg(args, cfg.Pipeline.Entities)

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openRelational(ctx, cfg)
	if err != nil {
		fail("failed to open relational store", err)
	}
	defer store.Close()

	g := schema.New(store, cfg.Embedding.Dimensions, confirmer())
	for _, e := range entities {
		rep, err := g.Prepare(ctx, e)
		if err != nil {
			fail("schema guard failed", err)
		}
		idx, err := g.EnsureIndex(ctx, e)
		if err != nil {
			fail("schema guard failed", err)
		}
		rep.Index = idx
		printGuardReport(rep)
	}
}

func printGuardReport(rep *schema.Report) {
	t := types.TableFor(rep.Entity)
	fmt.Printf("%s:\n", t.Table)
	if rep.PartitionRemoved {
		fmt.Println("  partitioning removed")
	}
	if rep.ColumnAdded {
		fmt.Printf("  added %s\n", t.VectorColumn)
	}
	if rep.Cleared > 0 {
		fmt.Printf("  cleared %d existing vectors\n", rep.Cleared)
	}
	if len(rep.QueueColumns) > 0 {
		fmt.Printf("  %s: added %s\n", t.QueueTable, strings.Join(rep.QueueColumns, ", "))
	}
	fmt.Printf("  vector index: %s\n", rep.Index)
}

func runEmbed(args []string) {
	cfg := loadConfig()
	entities := entitiesArg(args, cfg.Pipeline.Entities)

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openRelational(ctx, cfg)
	if err != nil {
		fail("failed to open relational store", err)
	}
	defer store.Close()

	confirm := confirmer()
	g := schema.New(store, cfg.Embedding.Dimensions, confirm)
	for _, e := range entities {
		if _, err := g.Prepare(ctx, e); err != nil {
			fail("schema guard failed", err)
		}
	}

	client, err := openEmbedder(cfg)
	if err != nil {
		fail("failed to create embedding provider", err)
	}
	defer client.Close()

	slog.Info("embedding provider ready",
		"provider", client.Provider(),
		"model", cfg.Embedding.Model,
		"dimensions", client.Dimensions())

	bar := prompt.NewBar(!noProgress && prompt.DefaultProgressEnabled())
	p := pipeline.New(pipeline.Config{
		Source:      store,
		Writer:      store,
		Embedder:    client,
		CommitEvery: cfg.Pipeline.CommitEvery,
		Confirm:     confirm,
		OnProgress: func(pr pipeline.Progress) {
			if pr.Processed == 1 {
				bar.Start(pr.Total, "embedding "+string(pr.Entity))
			}
			bar.Set(pr.Processed)
		},
	})

	failed := false
	for _, e := range entities {
		rep, err := p.Run(ctx, e)
		bar.Finish()
		printEmbedReport(rep)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nEmbedding interrupted. Committed batches are kept - run again to resume.")
			}
			fail("embedding aborted", err)
		}
		if len(rep.FailedIDs) > 0 {
			failed = true
		}
		if rep.Declined {
			continue
		}

		idx, err := g.EnsureIndex(ctx, e)
		if err != nil {
			fail("index build failed", err)
		}
		slog.Info("vector index", "entity", e, "outcome", idx)
	}

	calls, failures := client.Stats()
	slog.Info("embedding provider usage", "calls", calls, "failures", failures)
	if failed {
		os.Exit(1)
	}
}

func printEmbedReport(rep *pipeline.Report) {
	if rep == nil {
		return
	}
	if rep.Declined {
		fmt.Printf("%s: %d pending, declined\n", rep.Entity, rep.Selected)
		return
	}
	fmt.Printf("%s: %d selected, %d embedded, %d persisted, %d failed (%s)\n",
		rep.Entity, rep.Selected, rep.Embedded, rep.Persisted, len(rep.FailedIDs), rep.Duration.Round(1e6))
	if len(rep.FailedIDs) > 0 {
		fmt.Printf("  failed ids: %s\n", joinIDs(rep.FailedIDs))
	}
}

func runIndex(args []string) {
	cfg := loadConfig()
	entities := entitiesArg(args, cfg.Pipeline.Entities)

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openRelational(ctx, cfg)
	if err != nil {
		fail("failed to open relational store", err)
	}
	defer store.Close()

	g := schema.New(store, cfg.Embedding.Dimensions, nil)
	for _, e := range entities {
		idx, err := g.EnsureIndex(ctx, e)
		if err != nil {
			fail("index build failed", err)
		}
		fmt.Printf("%s: %s\n", types.TableFor(e).Table, idx)
	}
}

func runStatus() {
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openRelational(ctx, cfg)
	if err != nil {
		fail("failed to open relational store", err)
	}
	defer store.Close()

	fmt.Println("Embeddings:")
	for _, e := range types.AllEntities() {
		st, err := store.EmbeddingStats(ctx, e)
		if err != nil {
			fmt.Printf("  %-10s unavailable (%v)\n", e, err)
			continue
		}
		fmt.Printf("  %-10s %d/%d embedded, %d pending\n", e, st.Embedded, st.Total, st.Pending)
	}

	fmt.Println("Sync queues:")
	for _, e := range types.AllEntities() {
		st, err := store.QueueStats(ctx, e)
		if err != nil {
			fmt.Printf("  %-20s unavailable (%v)\n", types.TableFor(e).QueueTable, err)
			continue
		}
		fmt.Printf("  %-20s pending %d, in progress %d, completed %d, failed %d\n",
			types.TableFor(e).QueueTable,
			st.Counts[types.JobPending],
			st.Counts[types.JobInProgress],
			st.Counts[types.JobCompleted],
			st.Counts[types.JobFailed])
	}
}
