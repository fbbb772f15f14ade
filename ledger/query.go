package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecords is returned when the dataset holds no matching records.
var ErrNoRecords = errors.New("no ledger records found")

// Filter narrows a query. Empty fields match everything.
type Filter struct {
	Side    string
	Day     string
	Outcome string
}

func (f Filter) match(r Record) bool {
	if f.Side != "" && r.Side != f.Side {
		return false
	}
	if f.Day != "" && r.Day != f.Day {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	return true
}

// NewReadDataset opens a dataset for reading with the same layout and
// codec as the write path.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// NewReadDatasetFS opens a read dataset with filesystem storage.
func NewReadDatasetFS(dataset, root string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(root))
}

// Query returns every delivery record matching f, ordered by timestamp.
// Records are deduplicated by transfer id, so overlapping snapshots are
// counted once.
func Query(ctx context.Context, ds lode.Dataset, f Filter) ([]Record, error) {
	snapshots, err := listSnapshots(ctx, ds)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []Record
	for _, snap := range snapshots {
		if !snapshotHasPartition(snap, "record_kind", RecordKindDelivery) {
			continue
		}
		if !snapshotHasPartition(snap, "side", f.Side) {
			continue
		}
		if !snapshotHasPartition(snap, "day", f.Day) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindDelivery {
				continue
			}
			r := fromRecordMap(m)
			if !f.match(r) {
				continue
			}
			key := r.Side + "/" + r.TransferID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out, nil
}

// QueryLatestMetrics returns the most recent metrics record, optionally
// restricted to side. Returns ErrNoRecords if none exist.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, side string) (map[string]any, error) {
	snapshots, err := listSnapshots(ctx, ds)
	if err != nil {
		return nil, err
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHasPartition(snap, "record_kind", RecordKindMetrics) {
			continue
		}
		if !snapshotHasPartition(snap, "side", side) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		for j := len(data) - 1; j >= 0; j-- {
			m, ok := data[j].(map[string]any)
			if !ok || m["record_kind"] != RecordKindMetrics {
				continue
			}
			if side != "" && toString(m["side"]) != side {
				continue
			}
			return m, nil
		}
	}
	return nil, ErrNoRecords
}

// listSnapshots lists every snapshot. A dataset that has never been
// written reports ErrNoRecords.
func listSnapshots(ctx context.Context, ds lode.Dataset) ([]*lode.DatasetSnapshot, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		werr := WrapReadError(err, "snapshots")
		if errors.Is(werr, ErrNotFound) {
			return nil, ErrNoRecords
		}
		return nil, werr
	}
	return snapshots, nil
}

// snapshotHasPartition reports whether any file in the snapshot sits under
// the key=value partition. An empty value matches every snapshot.
func snapshotHasPartition(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if hasSegment(f.Path, key+"="+value) {
			return true
		}
	}
	return false
}

// hasSegment matches whole path segments so that day=2024-01-1 does not
// match day=2024-01-10.
func hasSegment(path, segment string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
