package reader

import (
	"strings"
	"testing"
)

func TestParseMetricsRecord(t *testing.T) {
	// JSONL round trips numbers as float64.
	record := map[string]any{
		"record_kind":                "metrics",
		"ts":                         "2024-03-09T14:05:07Z",
		"side":                       "receiver",
		"node":                       "relay-b",
		"sent_total":                 float64(0),
		"persisted_total":            float64(7),
		"quarantined_total":          float64(2),
		"failed_by_kind":             map[string]any{"decryption": float64(1), "metadata": float64(1)},
		"bytes_in_total":             float64(4096),
		"connections_accepted_total": float64(9),
		"relocate_failures_total":    float64(1),
		"ledger_write_success_total": float64(9),
		"notify_failure_total":       float64(3),
		"framing":                    "separator",
		"cipher":                     "xchacha20poly1305",
		"storage_backend":            "fs",
	}

	got, err := ParseMetricsRecord(record)
	if err != nil {
		t.Fatalf("ParseMetricsRecord failed: %v", err)
	}

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"Persisted", got.Persisted, 7},
		{"Quarantined", got.Quarantined, 2},
		{"BytesIn", got.BytesIn, 4096},
		{"ConnectionsAccepted", got.ConnectionsAccepted, 9},
		{"RelocateFailures", got.RelocateFailures, 1},
		{"LedgerWriteSuccess", got.LedgerWriteSuccess, 9},
		{"NotifyFailure", got.NotifyFailure, 3},
		{"FailedByKind[decryption]", got.FailedByKind["decryption"], 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if got.Side != "receiver" || got.Node != "relay-b" {
		t.Errorf("Side/Node = %q/%q", got.Side, got.Node)
	}
	if got.Cipher != "xchacha20poly1305" || got.Framing != "separator" {
		t.Errorf("Cipher/Framing = %q/%q", got.Cipher, got.Framing)
	}
}

func TestParseMetricsRecord_Int64Values(t *testing.T) {
	got, err := ParseMetricsRecord(map[string]any{
		"ts":             "2024-03-09T14:05:07Z",
		"side":           "sender",
		"sent_total":     int64(4),
		"failed_by_kind": map[string]int64{"connect_failed": 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Sent != 4 || got.FailedByKind["connect_failed"] != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestParseMetricsRecord_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		want   string
	}{
		{"nil", nil, "nil record"},
		{"no ts", map[string]any{"side": "sender"}, "ts"},
		{"no side", map[string]any{"ts": "2024-03-09T14:05:07Z"}, "side"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetricsRecord(tt.record)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}
