//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"time"
)

// Delivery is the terminal report of one delivery attempt on either side.
// Exactly one Delivery is produced per sender Execute call and per
// accepted receiver connection.
type Delivery struct {
	// Side is the half of the relay that produced this report.
	Side Side `json:"side"`
	// TransferID identifies the attempt. Sender and receiver ids are
	// independent; the wire carries no correlation id.
	TransferID string `json:"transfer_id"`
	// Filename is the source file name (sender) or the extracted
	// output name (receiver). Empty when the receiver never learned it.
	Filename string `json:"filename"`
	// OutputName is the derived .xml name (sender) or the name actually
	// written under received/ or received_error/ (receiver).
	OutputName string `json:"output_name,omitempty"`
	// Outcome is the terminal classification.
	Outcome Outcome `json:"outcome"`
	// Stage is the last stage reached. On failure this is the stage that failed.
	Stage Stage `json:"stage"`
	// ErrorKind classifies the failure; empty on success.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// Error is the failure message; empty on success.
	Error string `json:"error,omitempty"`
	// Bytes is the number of bytes on the wire for this attempt.
	Bytes int64 `json:"bytes"`
	// Digest is the hex blake3 digest of the wire bytes, if any were produced.
	Digest string `json:"digest,omitempty"`
	// Location is where the input ended up on disk. Empty if relocation failed.
	Location string `json:"location,omitempty"`
	// RelocateError is set when the input could not be moved or written
	// to its terminal location. The outcome is unchanged.
	RelocateError string `json:"relocate_error,omitempty"`
	// Peer is the remote address (receiver address for the sender,
	// client address for the receiver).
	Peer string `json:"peer,omitempty"`
	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`
	// Duration is the wall time from start to terminal outcome.
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the delivery ended in quarantine.
func (d *Delivery) Failed() bool {
	return d.Outcome == OutcomeQuarantined
}

// Fail records err as the terminal failure of d, classifying it by kind.
func (d *Delivery) Fail(err error) {
	d.Outcome = OutcomeQuarantined
	d.ErrorKind = KindOf(err)
	d.Error = err.Error()
	var se *StageError
	if errors.As(err, &se) {
		d.Stage = se.Stage
	}
}
