// Package codec implements the relay's wire framing.
//
// A Message (output filename + payload) is serialized in one of two modes:
//
//   - separator: filename + SEPARATOR + payload. Decoding splits on the
//     first occurrence of SEPARATOR, so payloads may contain it but
//     filenames may not. The end of a message is the peer closing the
//     connection; there is no length prefix.
//   - length_prefixed: a 4-byte big-endian length followed by a msgpack
//     envelope {filename, payload}. Unambiguous for any payload, but not
//     wire-compatible with separator mode.
//
// When encryption is enabled the encoded bytes are sealed as one opaque
// blob, so the separator never appears on the wire in cleartext.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSeparator is used when no SEPARATOR is configured.
const DefaultSeparator = "||"

// Frame size constants for length_prefixed mode.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxPayloadSize is the largest envelope a 4-byte prefix can describe.
	MaxPayloadSize = math.MaxUint32
)

// Mode selects the framing rules.
type Mode string

const (
	// ModeSeparator is delimiter-scanning framing (the default).
	ModeSeparator Mode = "separator"
	// ModeLengthPrefixed is length-prefixed msgpack framing.
	ModeLengthPrefixed Mode = "length_prefixed"
)

// ParseMode parses a framing mode string. Empty means separator.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", string(ModeSeparator):
		return ModeSeparator, nil
	case string(ModeLengthPrefixed), "length-prefixed":
		return ModeLengthPrefixed, nil
	default:
		return "", fmt.Errorf("invalid framing %q (must be separator or length_prefixed)", s)
	}
}

// Message is the unit transmitted over one connection.
type Message struct {
	// Filename is the output filename the receiver writes to.
	Filename string `msgpack:"filename"`
	// Payload is the transformed (and possibly compressed) document.
	Payload []byte `msgpack:"payload"`
}

// FrameErrorKind classifies frame encoding and decoding errors.
type FrameErrorKind int

const (
	// FrameErrorNoSeparator indicates the separator was not found.
	FrameErrorNoSeparator FrameErrorKind = iota
	// FrameErrorInvalidName indicates a filename that cannot be framed.
	FrameErrorInvalidName
	// FrameErrorPartial indicates a truncated length-prefixed frame.
	FrameErrorPartial
	// FrameErrorTooLarge indicates a frame exceeding the size limit.
	FrameErrorTooLarge
	// FrameErrorTrailing indicates bytes after a complete frame.
	FrameErrorTrailing
	// FrameErrorDecode indicates a msgpack envelope error.
	FrameErrorDecode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFrameError reports whether err is (or wraps) a *FrameError.
func IsFrameError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr)
}

// Codec serializes a Message to bytes and back.
type Codec interface {
	// Encode serializes msg for the wire.
	Encode(msg Message) ([]byte, error)
	// Decode reconstructs a Message from the complete bytes of one connection.
	Decode(data []byte) (Message, error)
	// Mode reports the framing mode.
	Mode() Mode
}

// New creates the codec for mode. separator is only used in separator mode.
func New(mode Mode, separator string) (Codec, error) {
	switch mode {
	case ModeSeparator, "":
		return NewSeparatorCodec(separator)
	case ModeLengthPrefixed:
		return NewLengthPrefixedCodec(), nil
	default:
		return nil, fmt.Errorf("unknown framing mode %q", mode)
	}
}

// SeparatorCodec frames messages as filename + separator + payload.
type SeparatorCodec struct {
	sep []byte
}

// NewSeparatorCodec creates a separator codec. The separator must be non-empty.
func NewSeparatorCodec(separator string) (*SeparatorCodec, error) {
	if separator == "" {
		return nil, errors.New("separator must not be empty")
	}
	return &SeparatorCodec{sep: []byte(separator)}, nil
}

// Separator returns the configured delimiter.
func (c *SeparatorCodec) Separator() string {
	return string(c.sep)
}

// Mode implements Codec.
func (c *SeparatorCodec) Mode() Mode { return ModeSeparator }

// Encode implements Codec.
// The filename must be non-empty and must not contain the separator.
func (c *SeparatorCodec) Encode(msg Message) ([]byte, error) {
	if err := validateName(msg.Filename); err != nil {
		return nil, err
	}
	if strings.Contains(msg.Filename, string(c.sep)) {
		return nil, &FrameError{
			Kind: FrameErrorInvalidName,
			Msg:  fmt.Sprintf("filename %q contains the separator %q", msg.Filename, c.sep),
		}
	}

	out := make([]byte, 0, len(msg.Filename)+len(c.sep)+len(msg.Payload))
	out = append(out, msg.Filename...)
	out = append(out, c.sep...)
	out = append(out, msg.Payload...)
	return out, nil
}

// Decode implements Codec.
// Splits on the first separator occurrence; everything after it,
// including further separators, is payload.
func (c *SeparatorCodec) Decode(data []byte) (Message, error) {
	i := bytes.Index(data, c.sep)
	if i < 0 {
		return Message{}, &FrameError{
			Kind: FrameErrorNoSeparator,
			Msg:  fmt.Sprintf("separator %q not found in %d bytes", c.sep, len(data)),
		}
	}
	payload := make([]byte, len(data)-i-len(c.sep))
	copy(payload, data[i+len(c.sep):])
	return Message{Filename: string(data[:i]), Payload: payload}, nil
}

// LengthPrefixedCodec frames messages as a length-prefixed msgpack envelope.
type LengthPrefixedCodec struct{}

// NewLengthPrefixedCodec creates a length-prefixed codec.
func NewLengthPrefixedCodec() *LengthPrefixedCodec {
	return &LengthPrefixedCodec{}
}

// Mode implements Codec.
func (c *LengthPrefixedCodec) Mode() Mode { return ModeLengthPrefixed }

// Encode implements Codec.
func (c *LengthPrefixedCodec) Encode(msg Message) ([]byte, error) {
	if err := validateName(msg.Filename); err != nil {
		return nil, err
	}
	body, err := msgpack.Marshal(&msg)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode envelope", Err: err}
	}
	if uint64(len(body)) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("envelope size %d exceeds maximum %d", len(body), uint64(MaxPayloadSize)),
		}
	}

	out := make([]byte, LengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out[:LengthPrefixSize], uint32(len(body)))
	copy(out[LengthPrefixSize:], body)
	return out, nil
}

// Decode implements Codec.
// The buffer must hold exactly one frame: no truncation, no trailing bytes.
func (c *LengthPrefixedCodec) Decode(data []byte) (Message, error) {
	if len(data) < LengthPrefixSize {
		return Message{}, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  fmt.Sprintf("frame is %d bytes, shorter than the length prefix", len(data)),
		}
	}

	size := uint64(binary.BigEndian.Uint32(data[:LengthPrefixSize]))
	body := data[LengthPrefixSize:]
	switch {
	case uint64(len(body)) < size:
		return Message{}, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  fmt.Sprintf("frame declares %d bytes, only %d received", size, len(body)),
		}
	case uint64(len(body)) > size:
		return Message{}, &FrameError{
			Kind: FrameErrorTrailing,
			Msg:  fmt.Sprintf("%d trailing bytes after frame", uint64(len(body))-size),
		}
	}

	var msg Message
	if err := msgpack.Unmarshal(body, &msg); err != nil {
		return Message{}, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode envelope", Err: err}
	}
	if msg.Filename == "" {
		return Message{}, &FrameError{Kind: FrameErrorInvalidName, Msg: "envelope has empty filename"}
	}
	return msg, nil
}

func validateName(name string) error {
	if name == "" {
		return &FrameError{Kind: FrameErrorInvalidName, Msg: "filename must not be empty"}
	}
	return nil
}
