package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a stage failure. The pipeline drivers match on the
// kind to decide between continuing and quarantining.
type ErrorKind string

const (
	// KindNotAFile means the source path is missing or not a regular file.
	KindNotAFile ErrorKind = "not_a_file"
	// KindMalformedJSON means the source bytes failed to decode as JSON.
	KindMalformedJSON ErrorKind = "malformed_json"
	// KindTransform means JSON to XML conversion failed.
	KindTransform ErrorKind = "transform_error"
	// KindCompression means payload compression or decompression failed.
	KindCompression ErrorKind = "compression_error"
	// KindEncryption means the cipher could not encrypt the framed message.
	KindEncryption ErrorKind = "encryption_error"
	// KindDecryption means the key is wrong or the ciphertext is corrupt.
	KindDecryption ErrorKind = "decryption_error"
	// KindConnectFailed means no connection to the receiver could be made.
	KindConnectFailed ErrorKind = "connect_failed"
	// KindSendFailed means a write failed mid-stream.
	KindSendFailed ErrorKind = "send_failed"
	// KindReceiveFailed means a read failed before the peer closed.
	KindReceiveFailed ErrorKind = "receive_failed"
	// KindMetadata means the filename boundary could not be recovered.
	KindMetadata ErrorKind = "metadata_error"
	// KindPersist means writing to the destination directory failed.
	KindPersist ErrorKind = "persist_error"
)

// StageError is the tagged failure result of one pipeline stage.
type StageError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a classified stage failure.
func NewStageError(kind ErrorKind, stage Stage, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the ErrorKind carried by err, or "" if err is not
// (and does not wrap) a *StageError.
func KindOf(err error) ErrorKind {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	return ""
}
