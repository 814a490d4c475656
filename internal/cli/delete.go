package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/parser"
)

func (a *app) deleteCommand() *cobra.Command {
	var field, value string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every document containing a term",
		Long: `Delete every document whose field contains the term. Text values are
analysed with the field's tokenizer and must produce exactly one token.

Examples:
  textindex delete --field title --value Frankenstein
  textindex delete --field year --value 1818`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			t, err := parser.ParseTerm(idx.Schema(), field, value)
			if err != nil {
				return err
			}
			w, err := idx.Writer(0, 0)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.DeleteTerm(t); err != nil {
				return err
			}
			info, err := w.Commit()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted documents matching %s:%s (opstamp %d)\n",
				field, value, info.Opstamp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&field, "field", "f", "", "field name (required)")
	cmd.Flags().StringVarP(&value, "value", "v", "", "term value (required)")
	cmd.MarkFlagRequired("field")
	cmd.MarkFlagRequired("value")
	return cmd
}
