package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/commentmail/internal/config"
	"github.com/aretw0/commentmail/internal/platform"
)

var (
	verbose    bool
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "commentmail",
	Short: "Email notifications for wiki comments",
	Long: `commentmail watches wiki documents for new and edited comments and mails
the document author, plus the author of the comment being answered.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: commentmail.yaml found upwards from the working directory)")
}

// loadConfig reads the configuration named by --config, or the nearest
// commentmail.yaml, or the environment alone when there is none.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		found, err := platform.FindConfig(cwd)
		switch {
		case err == nil:
			path = found
		case !errors.Is(err, platform.ErrConfigNotFound):
			return nil, err
		}
	}
	return config.Load(path)
}

// setup loads the configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := platform.NewLogger(cfg.Log, verbose, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
