// Package types defines core domain types shared by the sender and receiver.
//
//nolint:revive // types is a common Go package naming convention
package types

// Side identifies which half of the relay produced an outcome.
type Side string

const (
	// SideSender is the process that watches to_send/ and transmits.
	SideSender Side = "sender"
	// SideReceiver is the process that accepts connections and persists.
	SideReceiver Side = "receiver"
)

// Outcome is the terminal classification of a single delivery attempt.
// Every attempt reaches exactly one outcome; there is no retry state.
type Outcome string

const (
	// OutcomeSent means the message was transmitted and the source file
	// was moved to the sent archive.
	OutcomeSent Outcome = "sent"
	// OutcomePersisted means the receiver wrote the payload to received/.
	OutcomePersisted Outcome = "persisted"
	// OutcomeQuarantined means a stage failed and the input was moved
	// (sender) or written (receiver) to an error directory.
	OutcomeQuarantined Outcome = "quarantined"
)

// IsSuccess reports whether the outcome is a successful terminal state.
func (o Outcome) IsSuccess() bool {
	return o == OutcomeSent || o == OutcomePersisted
}

// Stage is a state in a pipeline's linear state machine.
// Transitions only move forward; any failure jumps to StageQuarantined.
type Stage string

// Sender stages, in execution order.
const (
	StageDiscovered  Stage = "discovered"
	StageValidated   Stage = "validated"
	StageParsed      Stage = "parsed"
	StageTransformed Stage = "transformed"
	StageCompressed  Stage = "compressed"
	StageFramed      Stage = "framed"
	StageEncrypted   Stage = "encrypted"
	StageSent        Stage = "sent"
)

// Receiver stages, in execution order.
const (
	StageAccepting  Stage = "accepting"
	StageBuffering  Stage = "buffering"
	StageDecrypting Stage = "decrypting"
	StageExtracting Stage = "extracting_metadata"
	StageDecoding   Stage = "decompressing"
	StageWriting    Stage = "writing"
	StagePersisted  Stage = "persisted"
)

// StageQuarantined is the shared failure state of both pipelines.
const StageQuarantined Stage = "quarantined"
