package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

type indexOptions struct {
	schemaFile  string
	includes    []string
	excludes    []string
	commitEvery int
	maxRate     float64
	strict      bool
	quiet       bool
}

type indexResult struct {
	files   int
	added   int
	skipped int
	commits int
	opstamp uint64
}

func (a *app) indexCommand() *cobra.Command {
	var opts indexOptions
	cmd := &cobra.Command{
		Use:   "index [path...]",
		Short: "Index JSON documents from files",
		Long: `Index JSON documents from files and directories. Directories are walked
and filtered by the include and exclude globs. Files ending in .ndjson hold
one document per line; other files hold one document or an array.

Examples:
  textindex index ./docs
  textindex index ./docs --include '**/*.ndjson' --exclude 'tmp/**'
  textindex index books.json --schema schema.yaml   # create the index if missing`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIndex(cmd, args, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.schemaFile, "schema", "s", "", "schema file used when the index does not exist yet")
	f.StringSliceVar(&opts.includes, "include", nil, "glob patterns to include (default from config)")
	f.StringSliceVar(&opts.excludes, "exclude", nil, "glob patterns to exclude (default from config)")
	f.IntVar(&opts.commitEvery, "commit-every", 0, "commit after this many documents (default from config)")
	f.Float64Var(&opts.maxRate, "max-rate", 0, "maximum documents per second (default from config, 0 = unlimited)")
	f.BoolVar(&opts.strict, "strict", false, "abort on the first invalid document")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func (a *app) runIndex(cmd *cobra.Command, args []string, opts indexOptions) error {
	cfg := a.cfg
	if len(opts.includes) == 0 {
		opts.includes = cfg.Ingest.Include
	}
	if len(opts.excludes) == 0 {
		opts.excludes = cfg.Ingest.Exclude
	}
	if opts.commitEvery == 0 {
		opts.commitEvery = cfg.Ingest.CommitEvery
	}
	if opts.maxRate == 0 {
		opts.maxRate = cfg.Ingest.MaxDocsPerSecond
	}

	files, err := newWalker(opts.includes, opts.excludes).walk(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no input files match", apperrors.ErrInvalidInput)
	}

	var idx *indexer.Index
	if indexer.Exists(cfg.Index.DataDir) || opts.schemaFile == "" {
		idx, err = a.openIndex()
	} else {
		s, serr := a.loadSchema(opts.schemaFile)
		if serr != nil {
			return serr
		}
		idx, err = indexer.Open(cfg.Index.DataDir, s, false, cfg)
	}
	if err != nil {
		return err
	}
	defer idx.Close()

	w, err := idx.Writer(0, 0)
	if err != nil {
		return err
	}
	defer w.Close()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.maxRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.maxRate), max(1, int(opts.maxRate)))
	}

	var progress io.Writer = cmd.ErrOrStderr()
	if opts.quiet {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(progress)
		}),
	)

	ctx := cmd.Context()
	logger := slog.Default().With("component", "cli-index")
	res := indexResult{files: len(files)}
	pending := 0

	commit := func() error {
		info, err := w.Commit()
		if err != nil {
			return err
		}
		res.commits++
		res.opstamp = info.Opstamp
		pending = 0
		return nil
	}

	start := time.Now()
	for _, path := range files {
		err := readDocuments(path, func(line int, doc string) error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			if err := w.AddJSON(doc); err != nil {
				if opts.strict || !invalidDocument(err) {
					return fmt.Errorf("%s:%d: %w", path, line, err)
				}
				logger.Warn("skipping document", "file", path, "line", line, "error", err)
				res.skipped++
				return nil
			}
			res.added++
			pending++
			if opts.commitEvery > 0 && pending >= opts.commitEvery {
				return commit()
			}
			return nil
		})
		if err != nil {
			return err
		}
		bar.Add(1)
	}
	if pending > 0 || res.commits == 0 {
		if err := commit(); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexing complete:\n")
	fmt.Fprintf(out, "  Files:     %d\n", res.files)
	fmt.Fprintf(out, "  Documents: %d\n", res.added)
	fmt.Fprintf(out, "  Skipped:   %d\n", res.skipped)
	fmt.Fprintf(out, "  Commits:   %d (opstamp %d)\n", res.commits, res.opstamp)
	fmt.Fprintf(out, "  Elapsed:   %s\n", formatDuration(time.Since(start)))
	return nil
}

// invalidDocument reports whether err rejects a single document rather
// than the whole run.
func invalidDocument(err error) bool {
	for _, target := range []error{
		apperrors.ErrMalformedJSON,
		apperrors.ErrSchemaMismatch,
		apperrors.ErrTypeMismatch,
		apperrors.ErrUnknownField,
		apperrors.ErrMalformedFacetPath,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
