package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
)

func (a *app) initCommand() *cobra.Command {
	var schemaFile string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty index from a schema file",
		Long: `Create an empty index in the index directory. The schema is a YAML file:

  fields:
    - name: title
      type: text
      stored: true
    - name: year
      type: u64
      indexed: true`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSchema(schemaFile)
			if err != nil {
				return err
			}
			idx, err := indexer.Open(a.cfg.Index.DataDir, s, false, a.cfg)
			if err != nil {
				return fmt.Errorf("creating index: %w", err)
			}
			defer idx.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Created index at %s\n%s\n", a.cfg.Index.DataDir, s)
			return nil
		},
	}
	cmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "schema file (default from config)")
	return cmd
}
