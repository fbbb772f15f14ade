package reader

import "errors"

// ParseMetricsRecord converts a stored metrics record to a MetricsSnapshot.
// Numeric fields may be int64 (in-process reads) or float64 (JSONL).
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts:   toString(record["ts"]),
		Side: toString(record["side"]),
		Node: toString(record["node"]),

		Sent:        toInt64(record["sent_total"]),
		Persisted:   toInt64(record["persisted_total"]),
		Quarantined: toInt64(record["quarantined_total"]),

		BytesOut:            toInt64(record["bytes_out_total"]),
		BytesIn:             toInt64(record["bytes_in_total"]),
		ConnectionsAccepted: toInt64(record["connections_accepted_total"]),
		RelocateFailures:    toInt64(record["relocate_failures_total"]),

		LedgerWriteSuccess: toInt64(record["ledger_write_success_total"]),
		LedgerWriteFailure: toInt64(record["ledger_write_failure_total"]),
		NotifyFailure:      toInt64(record["notify_failure_total"]),

		Framing:        toString(record["framing"]),
		Cipher:         toString(record["cipher"]),
		StorageBackend: toString(record["storage_backend"]),
	}
	snap.FailedByKind = parseCounts(record["failed_by_kind"])

	// The write path always sets these; their absence means a foreign or
	// corrupt record.
	if snap.Ts == "" {
		return nil, errors.New("metrics record missing required field: ts")
	}
	if snap.Side == "" {
		return nil, errors.New("metrics record missing required field: side")
	}
	return snap, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// parseCounts accepts map[string]int64 (direct) and map[string]any (JSON).
func parseCounts(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		out := make(map[string]int64, len(m))
		for k, val := range m {
			out[k] = toInt64(val)
		}
		return out
	default:
		return nil
	}
}
