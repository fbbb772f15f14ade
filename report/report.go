// Package report fans a terminal delivery outcome out to the metrics
// collector, the delivery ledger and any notification adapters.
//
// Reporting is strictly after the fact: failures here are logged and
// counted, and never change the outcome being reported.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/courier/adapter"
	"github.com/pithecene-io/courier/log"
	"github.com/pithecene-io/courier/metrics"
	"github.com/pithecene-io/courier/types"
)

// Recorder receives one call per terminal outcome.
type Recorder interface {
	Record(ctx context.Context, d *types.Delivery)
}

// Ledger is the durable sink for delivery and metrics records.
type Ledger interface {
	Append(ctx context.Context, d *types.Delivery) error
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error
	Close() error
}

// Nop is a Recorder that discards every outcome.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, *types.Delivery) {}

// Reporter is the standard Recorder.
type Reporter struct {
	logger    *log.Logger
	collector *metrics.Collector
	ledger    Ledger
	notifiers []adapter.Adapter
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLedger appends every outcome to l.
func WithLedger(l Ledger) Option {
	return func(r *Reporter) { r.ledger = l }
}

// WithNotifier publishes every outcome through a.
func WithNotifier(a adapter.Adapter) Option {
	return func(r *Reporter) { r.notifiers = append(r.notifiers, a) }
}

// New creates a Reporter. logger and collector may be nil.
func New(logger *log.Logger, collector *metrics.Collector, opts ...Option) *Reporter {
	if logger == nil {
		logger = log.Nop()
	}
	r := &Reporter{logger: logger, collector: collector}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Collector returns the metrics collector, possibly nil.
func (r *Reporter) Collector() *metrics.Collector {
	return r.collector
}

// Record implements Recorder.
func (r *Reporter) Record(ctx context.Context, d *types.Delivery) {
	r.collector.RecordOutcome(string(d.Outcome), string(d.ErrorKind))
	switch d.Side {
	case types.SideSender:
		r.collector.AddBytesOut(d.Bytes)
	case types.SideReceiver:
		r.collector.AddBytesIn(d.Bytes)
	}
	if d.RelocateError != "" {
		r.collector.IncRelocateFailure()
	}

	if r.ledger != nil {
		if err := r.ledger.Append(ctx, d); err != nil {
			r.collector.IncLedgerWriteFailure()
			r.logger.Warn("ledger append failed", map[string]any{
				"transfer_id": d.TransferID,
				"error":       err,
			})
		} else {
			r.collector.IncLedgerWriteSuccess()
		}
	}

	if len(r.notifiers) == 0 {
		return
	}
	event := adapter.NewDeliveryEvent(d)
	for _, n := range r.notifiers {
		if err := n.Publish(ctx, event); err != nil {
			r.collector.IncNotifyFailure()
			r.logger.Warn("notification failed", map[string]any{
				"transfer_id": d.TransferID,
				"error":       err,
			})
		}
	}
}

// Close writes the final metrics snapshot to the ledger, logs it, and
// releases the ledger and every notifier.
func (r *Reporter) Close(ctx context.Context) error {
	snap := r.collector.Snapshot()
	r.logger.Info("delivery metrics", map[string]any{
		"sent":                 snap.Sent,
		"persisted":            snap.Persisted,
		"quarantined":          snap.Quarantined,
		"failed_by_kind":       snap.FailedByKind,
		"bytes_out":            snap.BytesOut,
		"bytes_in":             snap.BytesIn,
		"connections_accepted": snap.ConnectionsAccepted,
		"relocate_failures":    snap.RelocateFailures,
	})

	var errs []error
	if r.ledger != nil {
		if r.collector != nil {
			if err := r.ledger.WriteMetrics(ctx, snap, time.Now()); err != nil {
				errs = append(errs, err)
			}
		}
		if err := r.ledger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, n := range r.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Recorder = (*Reporter)(nil)
	_ Recorder = Nop{}
)
