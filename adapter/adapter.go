// Package adapter defines the notification boundary for delivery outcomes.
//
// Adapters publish one event per terminal outcome to a downstream system.
// Publishing is best effort: the relay logs adapter failures and never
// changes a delivery outcome because of them.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/courier/types"
)

// EventType is the event_type of every published event.
const EventType = "delivery_completed"

// DefaultBackoff is the base delay between retry attempts.
const DefaultBackoff = 500 * time.Millisecond

// DeliveryEvent is the payload published when a delivery attempt ends.
type DeliveryEvent struct {
	Version    string `json:"version"`
	EventType  string `json:"event_type"` // always "delivery_completed"
	Side       string `json:"side"`
	TransferID string `json:"transfer_id"`
	Filename   string `json:"filename"`
	OutputName string `json:"output_name,omitempty"`
	Outcome    string `json:"outcome"` // sent, persisted, quarantined
	Stage      string `json:"stage"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	Location   string `json:"location,omitempty"`
	Bytes      int64  `json:"bytes"`
	Digest     string `json:"digest,omitempty"`
	Timestamp  string `json:"timestamp"` // RFC 3339
	DurationMs int64  `json:"duration_ms"`
}

// NewDeliveryEvent builds the event for d.
func NewDeliveryEvent(d *types.Delivery) *DeliveryEvent {
	return &DeliveryEvent{
		Version:    types.WireVersion,
		EventType:  EventType,
		Side:       string(d.Side),
		TransferID: d.TransferID,
		Filename:   d.Filename,
		OutputName: d.OutputName,
		Outcome:    string(d.Outcome),
		Stage:      string(d.Stage),
		ErrorKind:  string(d.ErrorKind),
		Error:      d.Error,
		Location:   d.Location,
		Bytes:      d.Bytes,
		Digest:     d.Digest,
		Timestamp:  d.StartedAt.Add(d.Duration).UTC().Format(time.RFC3339Nano),
		DurationMs: d.Duration.Milliseconds(),
	}
}

// Adapter publishes delivery events to a downstream system.
type Adapter interface {
	// Publish sends a delivery event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *DeliveryEvent) error

	// Close releases adapter resources.
	Close() error
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Retry stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry calls fn up to attempts times. Before attempt i (i > 0) it waits
// base * 2^(i-1). A Permanent error from fn stops the loop at once.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = DefaultBackoff
	}

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * base
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
