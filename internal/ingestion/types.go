// Package ingestion defines the request and response types of the HTTP
// ingestion API. Documents are validated against the index schema and
// published to the ingest topic for the indexer service.
package ingestion

// DeleteRequest removes every document whose field contains the term
// Value analyses to.
type DeleteRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// IngestResponse is returned once events are accepted by Kafka. The
// documents become searchable after the indexer commits them.
type IngestResponse struct {
	Accepted int      `json:"accepted"`
	Keys     []string `json:"keys"`
	Status   string   `json:"status"`
}
