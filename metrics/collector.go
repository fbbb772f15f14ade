// Package metrics provides per-process delivery counters.
//
// The Collector accumulates counters while a sender or receiver daemon runs.
// It is a leaf package with no internal dependencies; outcome and error
// kinds are passed as plain strings.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Outcomes
	Sent         int64
	Persisted    int64
	Quarantined  int64
	FailedByKind map[string]int64

	// Transport
	BytesOut            int64
	BytesIn             int64
	ConnectionsAccepted int64

	// Filesystem bookkeeping
	RelocateFailures int64

	// Ledger / notifications
	LedgerWriteSuccess int64
	LedgerWriteFailure int64
	NotifyFailure      int64

	// Dimensions (informational, set at construction)
	Side           string
	Framing        string
	Cipher         string
	StorageBackend string
}

// Total returns the number of terminal outcomes recorded.
func (s Snapshot) Total() int64 {
	return s.Sent + s.Persisted + s.Quarantined
}

// Collector accumulates counters during a daemon's lifetime.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sent         int64
	persisted    int64
	quarantined  int64
	failedByKind map[string]int64

	bytesOut            int64
	bytesIn             int64
	connectionsAccepted int64

	relocateFailures int64

	ledgerWriteSuccess int64
	ledgerWriteFailure int64
	notifyFailure      int64

	side           string
	framing        string
	cipher         string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
// cipher is "none" when encryption is disabled; storageBackend is "none"
// when no ledger is configured.
func NewCollector(side, framing, cipher, storageBackend string) *Collector {
	return &Collector{
		failedByKind:   make(map[string]int64),
		side:           side,
		framing:        framing,
		cipher:         cipher,
		storageBackend: storageBackend,
	}
}

// --- Outcomes ---

// RecordOutcome counts one terminal outcome. kind is the error kind for
// quarantined outcomes and ignored otherwise.
func (c *Collector) RecordOutcome(outcome, kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch outcome {
	case "sent":
		c.sent++
	case "persisted":
		c.persisted++
	case "quarantined":
		c.quarantined++
		if kind == "" {
			kind = "unknown"
		}
		c.failedByKind[kind]++
	}
}

// --- Transport ---

// AddBytesOut records bytes written to the wire by the sender.
func (c *Collector) AddBytesOut(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesOut += n
	c.mu.Unlock()
}

// AddBytesIn records bytes read from the wire by the receiver.
func (c *Collector) AddBytesIn(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesIn += n
	c.mu.Unlock()
}

// IncConnectionsAccepted records an accepted receiver connection.
func (c *Collector) IncConnectionsAccepted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connectionsAccepted++
	c.mu.Unlock()
}

// IncRelocateFailure records a source file that could not be moved
// into sent/ or sent_error/.
func (c *Collector) IncRelocateFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.relocateFailures++
	c.mu.Unlock()
}

// --- Ledger / notifications ---
// Ledger counters are per-call. A single write of a delivery record
// counts as one success or failure.

// IncLedgerWriteSuccess records a successful ledger write.
func (c *Collector) IncLedgerWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ledgerWriteSuccess++
	c.mu.Unlock()
}

// IncLedgerWriteFailure records a failed ledger write.
func (c *Collector) IncLedgerWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ledgerWriteFailure++
	c.mu.Unlock()
}

// IncNotifyFailure records a notification that failed after all retries.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.notifyFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failed := make(map[string]int64, len(c.failedByKind))
	for k, v := range c.failedByKind {
		failed[k] = v
	}

	return Snapshot{
		Sent:         c.sent,
		Persisted:    c.persisted,
		Quarantined:  c.quarantined,
		FailedByKind: failed,

		BytesOut:            c.bytesOut,
		BytesIn:             c.bytesIn,
		ConnectionsAccepted: c.connectionsAccepted,

		RelocateFailures: c.relocateFailures,

		LedgerWriteSuccess: c.ledgerWriteSuccess,
		LedgerWriteFailure: c.ledgerWriteFailure,
		NotifyFailure:      c.notifyFailure,

		Side:           c.side,
		Framing:        c.framing,
		Cipher:         c.cipher,
		StorageBackend: c.storageBackend,
	}
}
