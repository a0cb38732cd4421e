// aethersync embeds AetherMart catalog data for semantic search and keeps
// the MongoDB copy in step with MariaDB through the sync queues.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/spetr/aethersync/builtin"
	"github.com/spetr/aethersync/internal/config"
	"github.com/spetr/aethersync/internal/docstore"
	"github.com/spetr/aethersync/internal/embedding"
	"github.com/spetr/aethersync/internal/prompt"
	"github.com/spetr/aethersync/internal/relational"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

var (
	version    = "0.1.0"
	cfgFile    string
	logLevel   string
	logFormat  string
	assumeYes  bool
	noProgress bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aethersync",
	Short: "AetherMart embedding pipeline and relational to document sync",
	Long: `aethersync prepares the AetherMart MariaDB schema for vector search,
embeds customers, products and reviews through an embedding provider,
answers similarity queries, and mirrors queued relational changes into MongoDB.

It supports:
- Gemini, OpenAI-compatible and plugin embedding providers
- MariaDB vectors (VEC_FromText, VEC_DISTANCE_COSINE) or SQLite with sqlite-vec
- Claim-based draining of the customer, product and review sync queues
- An MCP tool server for search and status`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aethersync %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json); overrides config")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "approve every confirmation")

	initEmbedCommands()
	initSyncCommands()
	initSearchCommands()
	initConfigCommands()

	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {
	// Flags win over the config file; the file is read again by the command.
	level, format := logLevel, logFormat
	if level == "" || format == "" {
		if cfg, _, err := config.Load(cfgFile); err == nil {
			if level == "" {
				level = cfg.Logging.Level
			}
			if format == "" {
				format = cfg.Logging.Format
			}
		}
	}

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: lvl}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// loadConfig loads and validates the configuration or exits.
func loadConfig() *config.Config {
	cfg, warnings, err := config.Load(cfgFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid config", "error", e)
		}
		os.Exit(1)
	}
	return cfg
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received interrupt signal, stopping...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func openRelational(ctx context.Context, cfg *config.Config) (*relational.Store, error) {
	rc := cfg.Relational
	return relational.Open(ctx, relational.Options{
		Driver:         rc.Driver,
		Host:           rc.Host,
		Port:           rc.Port,
		User:           rc.User,
		Password:       rc.Password,
		Database:       rc.Database,
		Path:           rc.Path,
		Params:         rc.Params,
		ConnectRetries: rc.ConnectRetries,
	})
}

func openDocuments(ctx context.Context, cfg *config.Config) (provider.DocumentStore, error) {
	dc := cfg.Document
	return docstore.Open(ctx, docstore.Options{
		Provider:       dc.Provider,
		URI:            dc.URI,
		Host:           dc.Host,
		Port:           dc.Port,
		User:           dc.User,
		Password:       dc.Password,
		AuthDB:         dc.AuthDB,
		Database:       dc.Database,
		Timeout:        dc.Timeout,
		ConnectRetries: cfg.Relational.ConnectRetries,
	})
}

func openEmbedder(cfg *config.Config) (*embedding.Client, error) {
	ec := cfg.Embedding
	return embedding.Open(provider.DefaultRegistry, provider.EmbeddingConfig{
		Provider:   ec.Provider,
		Model:      ec.Model,
		Endpoint:   ec.Endpoint,
		APIKey:     ec.APIKey,
		Dimensions: ec.Dimensions,
		Timeout:    ec.Timeout,
		PluginDir:  ec.PluginDir,
	}, embedding.Options{
		Dimensions:      ec.Dimensions,
		RateLimitDelay:  ec.RateLimitDelay,
		FailureCooldown: ec.FailureCooldown,
	})
}

// confirmer returns the operator confirmation used by guard and embed.
func confirmer() types.ConfirmFunc {
	return prompt.NewTerminal(assumeYes).Confirm
}

// entitiesArg parses positional entity names, falling back to defaults.
func entitiesArg(args, defaults []string) []types.Entity {
	names := defaults
	if len(args) > 0 {
		names = args
	}
	entities, err := config.Entities(names)
	if err != nil {
		slog.Error("invalid entity", "error", err)
		os.Exit(1)
	}
	return entities
}

// exitCode maps the failure taxonomy to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrConnection):
		return 2
	case errors.Is(err, types.ErrSchema):
		return 3
	case errors.Is(err, types.ErrPersistence):
		return 4
	case errors.Is(err, types.ErrProvider):
		return 5
	case errors.Is(err, context.Canceled):
		return 130
	}
	return 1
}

// fail logs err and exits with its code.
func fail(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(exitCode(err))
}
