package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/keyhole/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrInvalidRecord is returned by Record for a record without an address
var ErrInvalidRecord = errors.New("flood record has no source address")

// FloodRecord is one accepted write from a source address
type FloodRecord struct {
	SourceAddress string
	Timestamp     time.Time
}

// HistoryStore is the append-only history of accepted writes, queried for
// the latest action per address
type HistoryStore interface {
	// LastAction returns the most recent timestamp recorded for addr.
	// found is false when addr has no history.
	LastAction(ctx context.Context, addr string) (ts time.Time, found bool, err error)

	// Record appends a record. Called by the write path after the write
	// succeeded, never by the flood guard.
	Record(ctx context.Context, rec FloodRecord) error
}

// instrumented wraps a HistoryStore with metrics and tracing
type instrumented struct {
	next    HistoryStore
	backend string
	metrics *observability.Metrics
}

// Instrument returns store wrapped so that every call is timed, counted and
// traced. metrics may be nil.
func Instrument(store HistoryStore, backend string, metrics *observability.Metrics) HistoryStore {
	return &instrumented{next: store, backend: backend, metrics: metrics}
}

func (s *instrumented) LastAction(ctx context.Context, addr string) (time.Time, bool, error) {
	ctx, span := observability.Tracer().Start(ctx, "history.LastAction")
	defer span.End()
	span.SetAttributes(attribute.String("history.backend", s.backend))

	start := time.Now()
	ts, found, err := s.next.LastAction(ctx, addr)
	s.metrics.ObserveHistory("last_action", start, err)

	span.SetAttributes(attribute.Bool("history.found", found))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
	}
	return ts, found, err
}

func (s *instrumented) Record(ctx context.Context, rec FloodRecord) error {
	ctx, span := observability.Tracer().Start(ctx, "history.Record")
	defer span.End()
	span.SetAttributes(attribute.String("history.backend", s.backend))

	start := time.Now()
	err := s.next.Record(ctx, rec)
	s.metrics.ObserveHistory("record", start, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
	}
	return err
}
