package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
)

// eventSink is the part of kafka.Producer the publish command uses.
type eventSink interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
	Close() error
}

func newKafkaPublisher(cfg config.KafkaConfig, topic string) eventSink {
	return kafka.NewProducer(cfg, topic)
}

func (a *app) publishCommand() *cobra.Command {
	var (
		topic     string
		batchSize int
		deletes   []string
		includes  []string
		excludes  []string
	)
	cmd := &cobra.Command{
		Use:   "publish [path...]",
		Short: "Publish documents and deletes to the ingest topic",
		Long: `Publish ingest events to Kafka for the indexer service. Every document
found in the given paths becomes an add event; every --delete field=value
becomes a delete event, published after the adds.

Examples:
  textindex publish ./docs
  textindex publish --delete year=1818`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(deletes) == 0 {
				return fmt.Errorf("%w: nothing to publish", apperrors.ErrInvalidInput)
			}
			if topic == "" {
				topic = a.cfg.Kafka.Topics.DocumentIngest
			}
			if len(includes) == 0 {
				includes = a.cfg.Ingest.Include
			}
			if len(excludes) == 0 {
				excludes = a.cfg.Ingest.Exclude
			}
			if batchSize <= 0 {
				batchSize = 100
			}

			var events []kafka.Event
			if len(args) > 0 {
				files, err := newWalker(includes, excludes).walk(args)
				if err != nil {
					return err
				}
				for _, path := range files {
					err := readDocuments(path, func(line int, doc string) error {
						if !json.Valid([]byte(doc)) {
							return fmt.Errorf("%w: %s:%d", apperrors.ErrMalformedJSON, path, line)
						}
						events = append(events, publisher.AddEvent(fmt.Sprintf("%s:%d", path, line), json.RawMessage(doc)))
						return nil
					})
					if err != nil {
						return err
					}
				}
			}
			for _, d := range deletes {
				field, value, ok := strings.Cut(d, "=")
				if !ok || field == "" {
					return fmt.Errorf("%w: --delete wants field=value, got %q", apperrors.ErrInvalidArgument, d)
				}
				events = append(events, publisher.DeleteEvent(ingestion.DeleteRequest{Field: field, Value: value}))
			}

			p := a.newPublisher(a.cfg.Kafka, topic)
			defer p.Close()
			for start := 0; start < len(events); start += batchSize {
				end := min(start+batchSize, len(events))
				if err := p.PublishBatch(cmd.Context(), events[start:end]); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %d events to %s\n", len(events), topic)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&topic, "topic", "", "ingest topic (default from config)")
	f.IntVar(&batchSize, "batch", 100, "events per Kafka write")
	f.StringArrayVar(&deletes, "delete", nil, "publish a delete event for field=value (repeatable)")
	f.StringSliceVar(&includes, "include", nil, "glob patterns to include (default from config)")
	f.StringSliceVar(&excludes, "exclude", nil, "glob patterns to exclude (default from config)")
	return cmd
}
