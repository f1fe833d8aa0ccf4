// Package consumer feeds document events into the indexer engine, either
// from a Kafka topic or from a JSON-lines stream.
package consumer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
)

// Engine is the part of *indexer.Engine the consumer drives.
type Engine interface {
	IndexDocument(doc indexer.Document) (uint32, error)
	DeleteDocument(global uint32) (bool, error)
}

// Apply performs one event. Events that can never succeed are reported
// with apperrors.ErrInvalidInput, ErrUnknownField or ErrDocumentNotFound.
func Apply(engine Engine, ev ingestion.Event) error {
	switch ev.Op {
	case "", ingestion.OpIndex:
		if len(ev.Fields) == 0 {
			return fmt.Errorf("%w: index event without fields", apperrors.ErrInvalidInput)
		}
		_, err := engine.IndexDocument(indexer.Document{Fields: ev.Fields, Boost: ev.Boost})
		return err
	case ingestion.OpDelete:
		if ev.Doc == nil {
			return fmt.Errorf("%w: delete event without doc", apperrors.ErrInvalidInput)
		}
		_, err := engine.DeleteDocument(*ev.Doc)
		return err
	default:
		return fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidInput, ev.Op)
	}
}

// permanent reports whether retrying ev after err cannot help. A failed
// index event is never retried: the engine has either rejected the document
// or already assigned its number.
func permanent(ev ingestion.Event, err error) bool {
	if ev.Op != ingestion.OpDelete {
		return true
	}
	return errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, apperrors.ErrDocumentNotFound)
}

// HandleMessage returns a Kafka MessageHandler that applies every event to
// engine. Malformed and rejected events are logged and acknowledged; a
// delete that fails for another reason is returned so it is retried.
func HandleMessage(engine Engine) kafka.MessageHandler {
	log := logger.WithComponent("index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[ingestion.Event](value)
		if err != nil {
			log.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := Apply(engine, ev); err != nil {
			if permanent(ev, err) {
				log.Warn("dropping document event", "key", string(key), "op", ev.Op, "error", err)
				return nil
			}
			return fmt.Errorf("applying %s event %s: %w", ev.Op, key, err)
		}
		log.Debug("document event applied", "key", string(key), "op", ev.Op)
		return nil
	}
}

// Stats counts the outcome of ReadLines.
type Stats struct {
	Applied int
	Skipped int
}

// ReadLines applies one JSON event per line of r until EOF or ctx is done.
// Blank lines are ignored; malformed or rejected events are skipped. A
// retryable delete failure stops the stream.
func ReadLines(ctx context.Context, r io.Reader, engine Engine) (Stats, error) {
	log := logger.WithComponent("index-consumer")
	var stats Stats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var ev ingestion.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Warn("skipping malformed line", "line", line, "error", err)
			stats.Skipped++
			continue
		}
		if err := Apply(engine, ev); err != nil {
			if !permanent(ev, err) {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
			log.Warn("skipping rejected event", "line", line, "error", err)
			stats.Skipped++
			continue
		}
		stats.Applied++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading events: %w", err)
	}
	return stats, nil
}
