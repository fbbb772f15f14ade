// Package xmlconv parses JSON documents and converts them to XML.
//
// The structural mapping (element naming, array handling) is delegated to
// mxj; this package only fixes the wrapper element, the indentation and
// the failure contract: the converter's output must be well-formed XML,
// otherwise conversion fails.
package xmlconv

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/clbanning/mxj/v2"
)

// DefaultRoot is the wrapper element around every converted document.
const DefaultRoot = "root"

// header is prepended to every converted document.
const header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// SyntaxError describes a JSON decoding failure.
type SyntaxError struct {
	// Offset is the byte offset where decoding failed.
	Offset int64
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid JSON at offset %d: %s", e.Offset, e.Msg)
}

// Parse decodes data as a single JSON value. Trailing data after the value
// is rejected. Numbers are kept as json.Number so large integers survive
// conversion unchanged.
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, toSyntaxError(err, dec, data)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: "extra data after JSON value"}
	}
	return v, nil
}

func toSyntaxError(err error, dec *json.Decoder, data []byte) error {
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &syntaxErr):
		return &SyntaxError{Offset: syntaxErr.Offset, Msg: syntaxErr.Error()}
	case errors.Is(err, io.EOF) && len(bytes.TrimSpace(data)) == 0:
		return &SyntaxError{Offset: 0, Msg: "empty document"}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &SyntaxError{Offset: int64(len(data)), Msg: "unexpected end of JSON input"}
	default:
		return &SyntaxError{Offset: dec.InputOffset(), Msg: err.Error()}
	}
}

// Converter turns parsed JSON into an indented XML document.
type Converter struct {
	root   string
	indent string
}

// escapeOnce turns on mxj's character-data escaping, which is a
// package-global setting and off by default.
var escapeOnce sync.Once

// NewConverter creates a converter wrapping documents in root.
// An empty root uses DefaultRoot.
func NewConverter(root string) *Converter {
	escapeOnce.Do(func() { mxj.XMLEscapeChars(true) })
	if root == "" {
		root = DefaultRoot
	}
	return &Converter{root: root, indent: "  "}
}

// Convert renders v (as produced by Parse) as XML.
func (c *Converter) Convert(v any) ([]byte, error) {
	body, err := mxj.AnyXmlIndent(v, "", c.indent, c.root)
	if err != nil {
		return nil, fmt.Errorf("converting to xml: %w", err)
	}
	if err := checkWellFormed(body); err != nil {
		return nil, fmt.Errorf("converted document is not well-formed: %w", err)
	}

	out := make([]byte, 0, len(header)+len(body)+1)
	out = append(out, header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// checkWellFormed tokenizes the whole document; keys that are not valid
// XML names surface here as syntax errors.
func checkWellFormed(doc []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
