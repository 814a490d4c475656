package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/reader"
)

type searchHit struct {
	Score   float64           `json:"score"`
	Address reader.DocAddress `json:"address"`
	Doc     map[string][]any  `json:"doc"`
}

func (a *app) searchCommand() *cobra.Command {
	var (
		text    string
		limit   int
		fields  []string
		asJSON  bool
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the index",
		Long: `Parse a query and print the best matching documents with their stored
fields.

Examples:
  textindex search -q "sea whale"
  textindex search -q 'title:"old man" AND year:1952' --limit 5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			q, err := idx.ParseQuery(text, fields...)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = a.cfg.Search.DefaultLimit
			}
			s := idx.Searcher()
			res, err := s.Execute(cmd.Context(), q, limit)
			if err != nil {
				return err
			}

			hits := make([]searchHit, 0, len(res.Results))
			for _, r := range res.Results {
				addr := reader.DocAddress{Segment: r.Segment, Doc: r.Doc}
				doc, err := s.Doc(addr)
				if err != nil {
					return err
				}
				hits = append(hits, searchHit{Score: r.Score, Address: addr, Doc: doc.ToMap()})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}
			if explain {
				fmt.Fprintf(out, "Parsed: %s\n", q)
			}
			fmt.Fprintf(out, "%d of %d matching documents (%s)\n", len(hits), res.TotalHits, s)
			for i, h := range hits {
				fmt.Fprintf(out, "%2d. %.4f %s %v\n", i+1, h.Score, h.Address, h.Doc)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&text, "query", "q", "", "query text (required)")
	f.IntVarP(&limit, "limit", "n", 0, "maximum number of hits (default from config)")
	f.StringSliceVar(&fields, "fields", nil, "default fields for unqualified terms")
	f.BoolVar(&asJSON, "json", false, "output as JSON")
	f.BoolVar(&explain, "explain", false, "print the parsed query")
	cmd.MarkFlagRequired("query")
	return cmd
}
