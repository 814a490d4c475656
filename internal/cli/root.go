// Package cli implements the textindex command line: creating indexes,
// bulk indexing JSON files, searching, deleting by term, inspecting and
// publishing ingest events to Kafka.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
)

// app holds the state shared by every subcommand.
type app struct {
	cfgFile  string
	dataDir  string
	logLevel string
	cfg      *config.Config

	newPublisher func(cfg config.KafkaConfig, topic string) eventSink
}

// NewRootCommand builds the textindex command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{newPublisher: newKafkaPublisher})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "textindex",
		Short: "Full-text indexing and search",
		Long: `textindex builds and queries full-text indexes stored on disk.

Example usage:
  textindex init --schema schema.yaml      # Create an index
  textindex index ./docs                   # Index JSON and NDJSON files
  textindex search -q "title:whale sea"    # Run a query
  textindex inspect                        # Show segments and schema`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVarP(&a.dataDir, "index", "i", "", "index directory (default from config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		a.initCommand(),
		a.indexCommand(),
		a.searchCommand(),
		a.deleteCommand(),
		a.inspectCommand(),
		a.publishCommand(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.dataDir != "" {
		cfg.Index.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// stdout carries command output; logs go to stderr.
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, "text")
	a.cfg = cfg
	return nil
}

// openIndex opens the existing index at the configured directory.
func (a *app) openIndex() (*indexer.Index, error) {
	path := a.cfg.Index.DataDir
	if !indexer.Exists(path) {
		return nil, fmt.Errorf("%w: no index at %s, run 'textindex init' first",
			apperrors.ErrIndexNotFound, path)
	}
	return indexer.Open(path, nil, true, a.cfg)
}

// loadSchema reads the schema file named by flag, or the configured one.
func (a *app) loadSchema(flag string) (*schema.Schema, error) {
	path := flag
	if path == "" {
		path = a.cfg.Index.SchemaFile
	}
	if path == "" {
		return nil, fmt.Errorf("%w: a schema file is required (--schema or index.schemaFile)",
			apperrors.ErrInvalidArgument)
	}
	return schema.LoadFile(path)
}
