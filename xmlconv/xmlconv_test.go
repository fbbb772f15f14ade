package xmlconv

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	v, err := Parse([]byte(`{"id": 1, "items": ["a", "b"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("Parse returned %T, want map", v)
	}
	if len(m) != 2 {
		t.Errorf("expected 2 keys, got %d", len(m))
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unquoted key", `{not valid}`},
		{"truncated", `{"id": 1`},
		{"empty", ``},
		{"whitespace only", "  \n"},
		{"trailing data", `{"id": 1} {"id": 2}`},
		{"trailing garbage", `[1, 2] x`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("expected *SyntaxError, got %T: %v", err, err)
			}
			if syntaxErr.Offset < 0 || syntaxErr.Offset > int64(len(tt.input)) {
				t.Errorf("offset %d out of range for %d-byte input", syntaxErr.Offset, len(tt.input))
			}
			if !strings.Contains(err.Error(), "offset") {
				t.Errorf("error should mention offset: %v", err)
			}
		})
	}
}

func TestParse_SyntaxOffset(t *testing.T) {
	_, err := Parse([]byte(`{not valid}`))
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
	if syntaxErr.Offset != 2 {
		t.Errorf("Offset = %d, want 2", syntaxErr.Offset)
	}
}

// element is a generic XML tree used to inspect converter output.
type element struct {
	XMLName  xml.Name
	Content  string    `xml:",chardata"`
	Children []element `xml:",any"`
}

func (e element) child(name string) (element, bool) {
	for _, c := range e.Children {
		if c.XMLName.Local == name {
			return c, true
		}
	}
	return element{}, false
}

func TestConverter_Object(t *testing.T) {
	v, err := Parse([]byte(`{"id":1}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	out, err := NewConverter("").Convert(v)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.HasPrefix(string(out), `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Errorf("missing XML header: %q", out)
	}

	var doc element
	if err := xml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("output is not valid XML: %v\n%s", err, out)
	}
	if doc.XMLName.Local != DefaultRoot {
		t.Errorf("root = %q, want %q", doc.XMLName.Local, DefaultRoot)
	}
	id, ok := doc.child("id")
	if !ok {
		t.Fatalf("missing <id> element: %s", out)
	}
	if strings.TrimSpace(id.Content) != "1" {
		t.Errorf("<id> = %q, want 1", id.Content)
	}
}

func TestConverter_NestedAndLargeNumbers(t *testing.T) {
	v, err := Parse([]byte(`{"order": {"sku": "A-1", "qty": 12345678901234567890}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := NewConverter("envelope").Convert(v)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.Contains(string(out), "12345678901234567890") {
		t.Errorf("large integer was not preserved: %s", out)
	}
	if !strings.Contains(string(out), "<envelope>") {
		t.Errorf("custom root missing: %s", out)
	}
}

func TestConverter_Indented(t *testing.T) {
	v, err := Parse([]byte(`{"a": {"b": "c"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := NewConverter("").Convert(v)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.Contains(string(out), "\n  <") {
		t.Errorf("expected indented output: %s", out)
	}
}

func TestConverter_NonRepresentableKey(t *testing.T) {
	v, err := Parse([]byte(`{"has space": 1}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := NewConverter("").Convert(v); err == nil {
		t.Fatal("expected error for key that is not an XML name")
	}
}

func TestConverter_EscapesCharacterData(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ampersand", `{"note": "fish & chips"}`, "fish & chips"},
		{"less than", `{"note": "a < b"}`, "a < b"},
		{"greater than", `{"note": "a > b"}`, "a > b"},
		{"quotes", `{"note": "say \"hi\" it's"}`, `say "hi" it's`},
		{"markup", `{"note": "<b>&amp;</b>"}`, "<b>&amp;</b>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			out, err := NewConverter("").Convert(v)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}

			var doc element
			if err := xml.Unmarshal(out, &doc); err != nil {
				t.Fatalf("output is not valid XML: %v\n%s", err, out)
			}
			note, ok := doc.child("note")
			if !ok {
				t.Fatalf("missing <note> element: %s", out)
			}
			if note.Content != tt.want {
				t.Errorf("<note> = %q, want %q", note.Content, tt.want)
			}
		})
	}
}
