// Command docagent edits stored documents toward a natural-language goal
// by driving an LLM through line-addressed document tools.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/martinemde/docagent/config"
	"github.com/martinemde/docagent/docstore"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %s\n", err)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "docagent",
		Short:         "Edit documents with an LLM agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: search docagent.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(runCmd(flags))
	cmd.AddCommand(createCmd(flags))
	cmd.AddCommand(listCmd(flags))
	cmd.AddCommand(showCmd(flags))
	return cmd
}

// loadConfig finds and loads the config file, falling back to defaults
// when no file exists and none was named.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	path, err := config.FindConfig(flags.configPath)
	if err != nil {
		if flags.configPath != "" {
			return nil, err
		}
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(w io.Writer, cfg *config.Config, flags *globalFlags) (*slog.Logger, error) {
	levelName := cfg.LogLevel
	if flags.logLevel != "" {
		levelName = flags.logLevel
	}
	level, err := config.ParseLogLevel(levelName)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}

	var handler slog.Handler
	switch strings.ToLower(flags.logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", flags.logFormat)
	}
	return slog.New(handler), nil
}

func openStore(cfg *config.Config) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return docstore.NewMemory(), nil
	default:
		return docstore.NewSQLite(cfg.Store.Path)
	}
}

// setup loads config, installs the logger and opens the store.
func setup(flags *globalFlags) (*config.Config, *slog.Logger, docstore.Store, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(os.Stderr, cfg, flags)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, logger, store, nil
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
