// Package ingestion defines the request/response types and the Kafka event
// schema of the document ingestion pipeline.
package ingestion

// Event operations.
const (
	OpIndex  = "index"
	OpDelete = "delete"
)

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
type IngestRequest struct {
	Fields map[string]string `json:"fields"`
	Boost  float64           `json:"boost,omitempty"`
}

// IngestResponse is returned to the caller once an event is published.
type IngestResponse struct {
	Op          string  `json:"op"`
	Status      string  `json:"status"`
	ContentHash string  `json:"content_hash,omitempty"`
	Doc         *uint32 `json:"doc,omitempty"`
}

// Event is one change to the index as carried on the document topic. Op
// defaults to OpIndex; delete events name the global document number in
// Doc.
type Event struct {
	Op     string            `json:"op,omitempty"`
	Doc    *uint32           `json:"doc,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Boost  float64           `json:"boost,omitempty"`
}
