package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/postgres"
)

type segmentInfo struct {
	ID       string `json:"id"`
	Opstamp  uint64 `json:"opstamp"`
	MaxDocs  uint32 `json:"max_docs"`
	LiveDocs uint32 `json:"live_docs"`
}

type inspectReport struct {
	Directory  string          `json:"directory"`
	Opstamp    uint64          `json:"opstamp"`
	NumDocs    uint64          `json:"num_docs"`
	Tombstones int             `json:"tombstones"`
	Segments   []segmentInfo   `json:"segments"`
	Schema     string          `json:"schema"`
	Commits    []catalog.Entry `json:"commits,omitempty"`
}

func (a *app) inspectCommand() *cobra.Command {
	var (
		asJSON  bool
		commits int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the committed state of the index",
		Long: `Print the schema, the latest opstamp and every committed segment. With
--commits, also list the most recent commits recorded in the Postgres
commit catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			meta, err := idx.Directory().LoadMeta()
			if err != nil {
				return err
			}
			snap := idx.Reader().Snapshot()
			schemaYAML, err := schema.Marshal(idx.Schema())
			if err != nil {
				return err
			}
			report := inspectReport{
				Directory:  idx.Directory().String(),
				Opstamp:    snap.Opstamp,
				NumDocs:    snap.NumDocs(),
				Tombstones: len(meta.Tombstones),
				Schema:     string(schemaYAML),
			}
			for _, seg := range snap.Segments {
				report.Segments = append(report.Segments, segmentInfo{
					ID:       seg.ID,
					Opstamp:  seg.Opstamp,
					MaxDocs:  seg.Reader.NumDocs(),
					LiveDocs: seg.NumDocs(),
				})
			}

			if commits > 0 {
				report.Commits, err = a.recentCommits(cmd, commits)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(out, "Index:      %s\n", report.Directory)
			fmt.Fprintf(out, "Opstamp:    %d\n", report.Opstamp)
			fmt.Fprintf(out, "Documents:  %d\n", report.NumDocs)
			fmt.Fprintf(out, "Tombstones: %d\n\nSchema:\n%s\n", report.Tombstones, report.Schema)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEGMENT\tOPSTAMP\tDOCS\tLIVE")
			for _, s := range report.Segments {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.ID, s.Opstamp, s.MaxDocs, s.LiveDocs)
			}
			if len(report.Commits) > 0 {
				fmt.Fprintln(tw, "\nCOMMIT\tDOCS\tDELETES\tAT")
				for _, c := range report.Commits {
					fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", c.Opstamp, c.Docs, c.Deletes, c.CommittedAt.Format("2006-01-02 15:04:05"))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().IntVar(&commits, "commits", 0, "list this many recent commits from the commit catalog")
	return cmd
}

func (a *app) recentCommits(cmd *cobra.Command, limit int) ([]catalog.Entry, error) {
	if a.cfg.Postgres.Host == "" {
		return nil, fmt.Errorf("%w: --commits needs postgres.host", apperrors.ErrInvalidArgument)
	}
	db, err := postgres.New(cmd.Context(), a.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return catalog.New(db.DB, catalog.IndexName(a.cfg.Index.DataDir)).Recent(cmd.Context(), limit)
}
