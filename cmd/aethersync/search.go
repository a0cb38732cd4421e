package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spetr/aethersync/internal/mcp"
	"github.com/spetr/aethersync/internal/retrieval"
	"github.com/spetr/aethersync/pkg/types"
)

var (
	searchLimit   int
	searchRatings []int
)

var searchCmd = &cobra.Command{
	Use:   "search <customers|products|reviews> <query>",
	Short: "Find the rows most similar to a query",
	Long: `Embed the query and rank the entity's rows by cosine distance.

Review searches read sentiment words in the query ("terrible", "excellent")
to narrow the ratings; --ratings sets the filter explicitly. Customer
matches are followed by their recent purchases and average rating.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSearch(args[0], strings.Join(args[1:], " "))
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long:  `Expose similarity search, customer evidence and status as MCP tools over stdio.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func initSearchCommands() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "number of matches (default from config)")
	searchCmd.Flags().IntSliceVar(&searchRatings, "ratings", nil, "review ratings to keep, e.g. 1,2")
	rootCmd.AddCommand(searchCmd, serveCmd)
}

func runSearch(entityName, query string) {
	cfg := loadConfig()
	entity, err := types.ParseEntity(entityName)
	if err != nil {
		slog.Error("invalid entity", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openRelational(ctx, cfg)
	if err != nil {
		fail("failed to open relational store", err)
	}
	defer store.Close()

	client, err := openEmbedder(cfg)
	if err != nil {
		fail("failed to create embedding provider", err)
	}
	defer client.Close()

	engine := retrieval.New(retrieval.Config{
		Embedder: client,
		Searcher: store,
		Limit:    cfg.Search.DefaultLimit,
	})

	res, err := engine.Search(ctx, retrieval.Request{
		Entity:  entity,
		Query:   query,
		Limit:   searchLimit,
		Ratings: searchRatings,
	})
	if err != nil {
		fail("search failed", err)
	}

	fmt.Printf("Query: %s\n", res.Query)
	if len(res.Ratings) > 0 {
		fmt.Printf("Ratings: %v\n", res.Ratings)
	}
	if len(res.Matches) == 0 {
		fmt.Println("No matches.")
		return
	}

	for i, m := range res.Matches {
		fmt.Printf("\n%d. %s (ID %d) %.2f%%\n", i+1, m.Title, m.ID, m.Similarity())
		if m.Detail != "" {
			fmt.Printf("   %s\n", m.Detail)
		}
		if entity != types.EntityCustomer {
			continue
		}
		ev, err := engine.Evidence(ctx, m.ID)
		if err != nil {
			slog.Warn("failed to load customer evidence", "customer", m.ID, "error", err)
			continue
		}
		printEvidence(ev)
	}
}

func printEvidence(ev *types.CustomerEvidence) {
	if len(ev.RecentProducts) == 0 {
		fmt.Println("   No purchases yet.")
	} else {
		fmt.Printf("   Recent purchases: %s\n", strings.Join(ev.RecentProducts, ", "))
	}
	if ev.HasRatings {
		fmt.Printf("   Average rating: %.1f/5\n", ev.AverageRating)
	}
}

func runServe() {
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openRelational(ctx, cfg)
	if err != nil {
		fail("failed to open relational store", err)
	}
	defer store.Close()

	client, err := openEmbedder(cfg)
	if err != nil {
		fail("failed to create embedding provider", err)
	}
	defer client.Close()

	engine := retrieval.New(retrieval.Config{
		Embedder: client,
		Searcher: store,
		Limit:    cfg.Search.DefaultLimit,
	})

	srv, err := mcp.New(mcp.Config{
		Engine:  engine,
		Stats:   store,
		Queues:  store,
		Version: version,
	})
	if err != nil {
		fail("failed to create MCP server", err)
	}

	slog.Info("starting MCP server", "provider", client.Provider())
	if err := srv.ServeStdio(); err != nil {
		fail("MCP server error", err)
	}
}
