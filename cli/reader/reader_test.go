package reader

import (
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/courier/ledger"
	"github.com/pithecene-io/courier/metrics"
	"github.com/pithecene-io/courier/types"
)

var t0 = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

// seed writes deliveries and one metrics snapshot to a filesystem ledger.
func seed(t *testing.T, root string) {
	t.Helper()
	ctx := t.Context()

	l, err := ledger.NewFS(ledger.Config{Side: types.SideSender, Node: "relay-a"}, root)
	if err != nil {
		t.Fatal(err)
	}
	c := metrics.NewCollector("sender", "separator", "none", "fs")
	for i, d := range []struct {
		id      string
		name    string
		outcome types.Outcome
		kind    types.ErrorKind
	}{
		{"t-1", "a.json", types.OutcomeSent, ""},
		{"t-2", "b.json", types.OutcomeQuarantined, types.KindMalformedJSON},
		{"t-3", "c.json", types.OutcomeSent, ""},
	} {
		del := &types.Delivery{
			Side:       types.SideSender,
			TransferID: d.id,
			Filename:   d.name,
			Outcome:    d.outcome,
			ErrorKind:  d.kind,
			Bytes:      100,
			StartedAt:  t0.Add(time.Duration(i) * time.Second),
		}
		if err := l.Append(ctx, del); err != nil {
			t.Fatalf("Append: %v", err)
		}
		c.RecordOutcome(string(d.outcome), string(d.kind))
	}
	if err := l.WriteMetrics(ctx, c.Snapshot(), t0.Add(time.Minute)); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}
}

func TestSource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		wantErr bool
	}{
		{"fs default", Source{Path: "/tmp/x"}, false},
		{"s3", Source{Backend: "s3", Path: "bucket/prefix"}, false},
		{"no path", Source{}, true},
		{"bad backend", Source{Backend: "gcs", Path: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.src.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeliveryStats(t *testing.T) {
	root := t.TempDir()
	seed(t, root)

	ds, err := Open(t.Context(), Source{Path: root})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	stats, err := DeliveryStats(t.Context(), ds, ledger.Filter{}, 5)
	if err != nil {
		t.Fatalf("DeliveryStats: %v", err)
	}
	if stats.Total != 3 || stats.Sent != 2 || stats.Quarantined != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByKind["malformed_json"] != 1 {
		t.Errorf("ByKind = %v", stats.ByKind)
	}
}

func TestDeliveryStats_Empty(t *testing.T) {
	ds, err := Open(t.Context(), Source{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	stats, err := DeliveryStats(t.Context(), ds, ledger.Filter{}, 5)
	if err != nil {
		t.Fatalf("DeliveryStats on empty ledger: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
}

func TestDeliveries_NewestFirstWithLimit(t *testing.T) {
	root := t.TempDir()
	seed(t, root)

	ds, err := Open(t.Context(), Source{Path: root})
	if err != nil {
		t.Fatal(err)
	}
	rows, err := Deliveries(t.Context(), ds, ledger.Filter{}, 2)
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].TransferID != "t-3" || rows[1].TransferID != "t-2" {
		t.Errorf("rows = %s, %s; want t-3, t-2", rows[0].TransferID, rows[1].TransferID)
	}
	if rows[1].ErrorKind != "malformed_json" {
		t.Errorf("ErrorKind = %q", rows[1].ErrorKind)
	}
}

func TestLatestMetrics(t *testing.T) {
	root := t.TempDir()
	seed(t, root)

	ds, err := Open(t.Context(), Source{Path: root})
	if err != nil {
		t.Fatal(err)
	}
	snap, err := LatestMetrics(t.Context(), ds, "sender")
	if err != nil {
		t.Fatalf("LatestMetrics: %v", err)
	}
	if snap.Sent != 2 || snap.Quarantined != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Node != "relay-a" {
		t.Errorf("Node = %q, want relay-a", snap.Node)
	}
	if snap.FailedByKind["malformed_json"] != 1 {
		t.Errorf("FailedByKind = %v", snap.FailedByKind)
	}

	if _, err := LatestMetrics(t.Context(), ds, "receiver"); !errors.Is(err, ledger.ErrNoRecords) {
		t.Errorf("LatestMetrics(receiver) error = %v, want ErrNoRecords", err)
	}
}
