package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/spetr/aethersync/internal/config"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath()
		if _, err := os.Stat(path); err == nil && !forceInit {
			fmt.Printf("%s already exists. Use --force to overwrite.\n", path)
			os.Exit(1)
		}
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			slog.Error("failed to write config", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
		fmt.Println("Set AETHERSYNC_EMBEDDING_API_KEY or GEMINI_API_KEY before running embed.")
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, warnings, err := config.Load(cfgFile)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		for _, w := range warnings {
			fmt.Printf("warning: %s\n", w)
		}
		errs := config.Validate(cfg)
		for _, e := range errs {
			fmt.Printf("error: %v\n", e)
		}
		if len(errs) > 0 {
			os.Exit(1)
		}
		fmt.Println("Configuration is valid.")
	},
}

func initConfigCommands() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath
}
