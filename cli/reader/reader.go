// Package reader is the read side of the delivery ledger used by the
// stats commands. It opens a dataset on the configured backend and turns
// stored records into display types.
package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/courier/ledger"
)

// Source locates a ledger dataset.
type Source struct {
	Dataset   string
	Backend   string // "fs" or "s3"; empty means fs
	Path      string // root directory, or bucket[/prefix] for s3
	Region    string
	Endpoint  string
	PathStyle bool
}

// Validate checks that the source can be opened.
func (s Source) Validate() error {
	if s.Path == "" {
		return errors.New("ledger path is required")
	}
	switch s.Backend {
	case "", "fs", "s3":
		return nil
	default:
		return fmt.Errorf("unknown ledger backend %q (must be fs or s3)", s.Backend)
	}
}

// Open returns a read dataset for src.
func Open(ctx context.Context, src Source) (lode.Dataset, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if src.Backend != "s3" {
		return ledger.NewReadDatasetFS(src.Dataset, src.Path)
	}

	bucket, prefix := ledger.ParseS3Path(src.Path)
	factory, err := ledger.S3Factory(ctx, ledger.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       src.Region,
		Endpoint:     src.Endpoint,
		UsePathStyle: src.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return ledger.NewReadDataset(src.Dataset, factory)
}

// DeliveryStats aggregates the records matching f. An empty ledger yields
// zero stats rather than an error.
func DeliveryStats(ctx context.Context, ds lode.Dataset, f ledger.Filter, recent int) (ledger.Stats, error) {
	records, err := ledger.Query(ctx, ds, f)
	if errors.Is(err, ledger.ErrNoRecords) {
		return ledger.Aggregate(nil, recent), nil
	}
	if err != nil {
		return ledger.Stats{}, err
	}
	return ledger.Aggregate(records, recent), nil
}

// Deliveries returns the newest limit records matching f, newest first.
// A limit of zero returns all of them.
func Deliveries(ctx context.Context, ds lode.Dataset, f ledger.Filter, limit int) ([]DeliveryRow, error) {
	records, err := ledger.Query(ctx, ds, f)
	if errors.Is(err, ledger.ErrNoRecords) {
		return []DeliveryRow{}, nil
	}
	if err != nil {
		return nil, err
	}

	rows := make([]DeliveryRow, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		rows = append(rows, DeliveryRow{
			Ts:         r.Ts,
			Side:       r.Side,
			Filename:   r.Filename,
			Outcome:    r.Outcome,
			ErrorKind:  r.ErrorKind,
			Bytes:      r.Bytes,
			TransferID: r.TransferID,
		})
		if limit > 0 && len(rows) == limit {
			break
		}
	}
	return rows, nil
}

// LatestMetrics returns the newest metrics snapshot for side, or for any
// side when side is empty. It returns ledger.ErrNoRecords when none exist.
func LatestMetrics(ctx context.Context, ds lode.Dataset, side string) (*MetricsSnapshot, error) {
	m, err := ledger.QueryLatestMetrics(ctx, ds, side)
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(m)
}
