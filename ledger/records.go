package ledger

import (
	"time"

	"github.com/pithecene-io/courier/metrics"
	"github.com/pithecene-io/courier/types"
)

// RecordKind discriminator values.
const (
	RecordKindDelivery = "delivery"
	RecordKindMetrics  = "metrics"
)

// Record is the read-side view of a delivery record.
type Record struct {
	Side       string `json:"side" yaml:"side"`
	Day        string `json:"day" yaml:"day"`
	TransferID string `json:"transfer_id" yaml:"transfer_id"`
	Filename   string `json:"filename" yaml:"filename"`
	OutputName string `json:"output_name,omitempty" yaml:"output_name,omitempty"`
	Outcome    string `json:"outcome" yaml:"outcome"`
	Stage      string `json:"stage" yaml:"stage"`
	ErrorKind  string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	Bytes      int64  `json:"bytes" yaml:"bytes"`
	Digest     string `json:"digest,omitempty" yaml:"digest,omitempty"`
	Location   string `json:"location,omitempty" yaml:"location,omitempty"`
	Peer       string `json:"peer,omitempty" yaml:"peer,omitempty"`
	Node       string `json:"node,omitempty" yaml:"node,omitempty"`
	Ts         string `json:"ts" yaml:"ts"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

// toDeliveryRecordMap converts a Delivery to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toDeliveryRecordMap(d *types.Delivery, cfg Config) map[string]any {
	side := d.Side
	if side == "" {
		side = cfg.Side
	}
	started := d.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	m := map[string]any{
		"record_kind": RecordKindDelivery,
		"side":        string(side),
		"day":         DeriveDay(started),
		"transfer_id": d.TransferID,
		"filename":    d.Filename,
		"output_name": d.OutputName,
		"outcome":     string(d.Outcome),
		"stage":       string(d.Stage),
		"bytes":       d.Bytes,
		"ts":          started.UTC().Format(time.RFC3339Nano),
		"duration_ms": d.Duration.Milliseconds(),
	}
	if d.ErrorKind != "" {
		m["error_kind"] = string(d.ErrorKind)
	}
	if d.Error != "" {
		m["error"] = d.Error
	}
	if d.Digest != "" {
		m["digest"] = d.Digest
	}
	if d.Location != "" {
		m["location"] = d.Location
	}
	if d.Peer != "" {
		m["peer"] = d.Peer
	}
	if cfg.Node != "" {
		m["node"] = cfg.Node
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot to a map for Lode storage.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, at time.Time) map[string]any {
	side := snap.Side
	if side == "" {
		side = string(cfg.Side)
	}
	m := map[string]any{
		"record_kind":                RecordKindMetrics,
		"side":                       side,
		"day":                        DeriveDay(at),
		"ts":                         at.UTC().Format(time.RFC3339Nano),
		"sent_total":                 snap.Sent,
		"persisted_total":            snap.Persisted,
		"quarantined_total":          snap.Quarantined,
		"failed_by_kind":             snap.FailedByKind,
		"bytes_out_total":            snap.BytesOut,
		"bytes_in_total":             snap.BytesIn,
		"connections_accepted_total": snap.ConnectionsAccepted,
		"relocate_failures_total":    snap.RelocateFailures,
		"ledger_write_success_total": snap.LedgerWriteSuccess,
		"ledger_write_failure_total": snap.LedgerWriteFailure,
		"notify_failure_total":       snap.NotifyFailure,
		"framing":                    snap.Framing,
		"cipher":                     snap.Cipher,
		"storage_backend":            snap.StorageBackend,
	}
	if cfg.Node != "" {
		m["node"] = cfg.Node
	}
	return m
}

// fromRecordMap converts a stored delivery record back to a Record.
// Numeric fields may come back as float64 after a JSONL round trip.
func fromRecordMap(m map[string]any) Record {
	return Record{
		Side:       toString(m["side"]),
		Day:        toString(m["day"]),
		TransferID: toString(m["transfer_id"]),
		Filename:   toString(m["filename"]),
		OutputName: toString(m["output_name"]),
		Outcome:    toString(m["outcome"]),
		Stage:      toString(m["stage"]),
		ErrorKind:  toString(m["error_kind"]),
		Error:      toString(m["error"]),
		Bytes:      toInt64(m["bytes"]),
		Digest:     toString(m["digest"]),
		Location:   toString(m["location"]),
		Peer:       toString(m["peer"]),
		Node:       toString(m["node"]),
		Ts:         toString(m["ts"]),
		DurationMs: toInt64(m["duration_ms"]),
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts a decoded numeric value to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
