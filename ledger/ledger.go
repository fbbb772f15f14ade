// Package ledger appends delivery outcomes to a Lode dataset.
//
// Every terminal outcome of the sender or receiver becomes one JSONL record
// in a Hive-partitioned dataset (side/day/record_kind). The ledger is the
// durable source for the stats command; it never influences delivery.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/courier/metrics"
	"github.com/pithecene-io/courier/types"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "courier"

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("ledger closed")

// DeriveDay computes the partition day from a timestamp.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config holds ledger configuration.
type Config struct {
	// Dataset is the Lode dataset id (default "courier").
	Dataset string
	// Side is the partition key for the process writing records.
	Side types.Side
	// Node is an optional free-form label for the writing host.
	Node string
}

// Ledger is a Lode-backed append-only delivery log.
// Safe for concurrent use.
type Ledger struct {
	dataset lode.Dataset
	config  Config

	mu     sync.Mutex
	closed bool
}

// New creates a ledger over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func New(cfg Config, factory lode.StoreFactory) (*Ledger, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Ledger{dataset: ds, config: cfg}, nil
}

// NewFS creates a ledger with filesystem storage rooted at root.
func NewFS(cfg Config, root string) (*Ledger, error) {
	return New(cfg, lode.NewFSFactory(root))
}

// Append writes one delivery record.
func (l *Ledger) Append(ctx context.Context, d *types.Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	record := toDeliveryRecordMap(d, l.config)
	if _, err := l.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, l.config.Dataset+"/"+RecordKindDelivery)
	}
	return nil
}

// WriteMetrics writes a metrics snapshot record.
func (l *Ledger) WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	record := toMetricsRecordMap(snap, l.config, at)
	if _, err := l.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, l.config.Dataset+"/"+RecordKindMetrics)
	}
	return nil
}

// Close marks the ledger closed. Further writes return ErrClosed.
func (l *Ledger) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// newDataset opens a dataset with the layout and codec shared by the
// write and read paths.
func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout("side", "day", "record_kind"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}
