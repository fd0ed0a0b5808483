// Package commands implements the aiservice CLI.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/notflix/aiservice/internal/config"
	"github.com/notflix/aiservice/internal/env"
	"github.com/notflix/aiservice/internal/logger"
)

// Version is set at build time with -ldflags "-X ...commands.Version=v1.2.3".
var Version = "dev"

var (
	flagConfigPath string
	flagSchemaPath string
	flagTestMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "aiservice",
	Short: "Stateless local inference gateway",
	Long: `aiservice runs speech transcription, linguistic analysis and machine
translation models behind a small HTTP API.

Models are loaded on first use (or at startup when listed under preload:),
stay resident for the lifetime of the process and serve one inference at a
time each.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", filepath.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagSchemaPath, "schema", "", "Path to schema file (defaults to the embedded schema)")
	rootCmd.PersistentFlags().BoolVar(&flagTestMode, "test-mode", false, "Use the deterministic stub runtimes")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

// loadConfig reads the config file, or falls back to the built-in defaults
// when it does not exist. Environment overrides apply either way.
func loadConfig() (*config.Config, bool, error) {
	cfg, err := config.LoadAndValidate(flagConfigPath, flagSchemaPath)
	found := true
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg, found = config.Default(), false
	case err != nil:
		return nil, false, err
	}

	config.ApplyEnv(cfg, nil)
	applyFlags(cfg)
	return cfg, found, nil
}

func applyFlags(cfg *config.Config) {
	if flagTestMode && !cfg.TestMode {
		cfg.TestMode = true
		cfg.ApplyDefaults()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(env.FromEnv(),
		logger.WithLevel(logger.ParseLevel(cfg.Log.Level)),
		logger.WithLogToFile(cfg.Log.ToFile),
		logger.WithLogFile(cfg.Log.File),
		logger.WithOutput(os.Stderr),
	)
}
