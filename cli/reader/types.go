package reader

// MetricsSnapshot is the latest persisted metrics record of one side.
type MetricsSnapshot struct {
	Ts   string `json:"ts" yaml:"ts"`
	Side string `json:"side" yaml:"side"`
	Node string `json:"node,omitempty" yaml:"node,omitempty"`

	// Outcomes
	Sent         int64            `json:"sent" yaml:"sent"`
	Persisted    int64            `json:"persisted" yaml:"persisted"`
	Quarantined  int64            `json:"quarantined" yaml:"quarantined"`
	FailedByKind map[string]int64 `json:"failed_by_kind,omitempty" yaml:"failed_by_kind,omitempty"`

	// Transport
	BytesOut            int64 `json:"bytes_out" yaml:"bytes_out"`
	BytesIn             int64 `json:"bytes_in" yaml:"bytes_in"`
	ConnectionsAccepted int64 `json:"connections_accepted" yaml:"connections_accepted"`
	RelocateFailures    int64 `json:"relocate_failures" yaml:"relocate_failures"`

	// Ledger / notifications
	LedgerWriteSuccess int64 `json:"ledger_write_success" yaml:"ledger_write_success"`
	LedgerWriteFailure int64 `json:"ledger_write_failure" yaml:"ledger_write_failure"`
	NotifyFailure      int64 `json:"notify_failure" yaml:"notify_failure"`

	// Dimensions
	Framing        string `json:"framing" yaml:"framing"`
	Cipher         string `json:"cipher" yaml:"cipher"`
	StorageBackend string `json:"storage_backend" yaml:"storage_backend"`
}

// DeliveryRow is one line of the deliveries listing.
type DeliveryRow struct {
	Ts         string `json:"ts" yaml:"ts"`
	Side       string `json:"side" yaml:"side"`
	Filename   string `json:"filename" yaml:"filename"`
	Outcome    string `json:"outcome" yaml:"outcome"`
	ErrorKind  string `json:"error_kind" yaml:"error_kind"`
	Bytes      int64  `json:"bytes" yaml:"bytes"`
	TransferID string `json:"transfer_id" yaml:"transfer_id"`
}
