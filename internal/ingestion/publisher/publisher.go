// Package publisher turns accepted ingestion requests into document events
// on the Kafka document topic.
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
)

// PartitionKey is the message key of every document event. Document
// numbers are assigned in arrival order, so all events share one partition.
const PartitionKey = "documents"

// StatusQueued is reported for events handed to Kafka.
const StatusQueued = "QUEUED"

// Producer publishes events. *kafka.Producer implements it.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher publishes document events.
type Publisher struct {
	producer Producer
	logger   *slog.Logger
}

// New creates a Publisher writing through producer.
func New(producer Producer) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   logger.WithComponent("publisher"),
	}
}

// Ingest publishes an index event for req.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	hash := ContentHash(req.Fields)
	event := ingestion.Event{Op: ingestion.OpIndex, Fields: req.Fields, Boost: req.Boost}
	if err := p.publish(ctx, event); err != nil {
		return nil, err
	}
	p.logger.Debug("index event published", "content_hash", hash, "fields", len(req.Fields))
	return &ingestion.IngestResponse{Op: ingestion.OpIndex, Status: StatusQueued, ContentHash: hash}, nil
}

// Delete publishes a delete event for the global document doc.
func (p *Publisher) Delete(ctx context.Context, doc uint32) (*ingestion.IngestResponse, error) {
	event := ingestion.Event{Op: ingestion.OpDelete, Doc: &doc}
	if err := p.publish(ctx, event); err != nil {
		return nil, err
	}
	p.logger.Debug("delete event published", "doc", doc)
	return &ingestion.IngestResponse{Op: ingestion.OpDelete, Status: StatusQueued, Doc: &doc}, nil
}

func (p *Publisher) publish(ctx context.Context, event ingestion.Event) error {
	if err := p.producer.Publish(ctx, kafka.Event{Key: PartitionKey, Value: event}); err != nil {
		p.logger.Error("failed to publish document event", "op", event.Op, "error", err)
		return fmt.Errorf("publishing %s event: %w", event.Op, err)
	}
	return nil
}

// ContentHash is the hex SHA-256 of the field values in field name order.
func ContentHash(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%d:%s%d:%s", len(name), name, len(fields[name]), fields[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}
