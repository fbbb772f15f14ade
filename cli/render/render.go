// Package render writes command output in the format chosen on the
// command line.
//
// Format selection:
//   - --format always wins; an unknown format is an error
//   - otherwise a TTY gets table and anything else gets json
//
// --no-color affects table output only. TUI mode carries its own styling.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/courier/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string. An empty string returns an empty
// Format so the caller can pick the default.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from the --format and --no-color flags,
// writing to the command's stdout.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	if format == "" {
		format = FormatJSON
		if f, ok := out.(*os.File); ok && isTTY(f) {
			format = FormatTable
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     out,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI runs the interactive view for viewType.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

// renderTable prints a slice of structs as rows under a header, and a
// single struct or map as key/value lines.
func (r *Renderer) renderTable(data any) error {
	v := reflect.Indirect(reflect.ValueOf(data))
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			fmt.Fprintln(w, "(no results)")
			return nil
		}
		fmt.Fprintln(w, strings.Join(columns(v.Type().Elem()), "\t"))
		for i := range v.Len() {
			fmt.Fprintln(w, strings.Join(r.row(v.Index(i)), "\t"))
		}
	case reflect.Struct:
		names := columns(v.Type())
		for i, cell := range r.row(v) {
			if names[i] == "outcome" {
				cell = r.colorOutcome(cell)
			}
			fmt.Fprintf(w, "%s:\t%s\n", names[i], cell)
		}
	case reflect.Map:
		for _, e := range sortedEntries(v) {
			fmt.Fprintf(w, "%s:\t%s\n", e.key, r.formatValue(e.val))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return nil
}

// colorOutcome styles the value (the last table column) so tab alignment
// is unaffected.
func (r *Renderer) colorOutcome(outcome string) string {
	if r.noColor {
		return outcome
	}
	return tui.OutcomeStyle(outcome).Render(outcome)
}

// columns names the fields of a struct type by their json tags.
func columns(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return []string{"value"}
	}
	names := make([]string, t.NumField())
	for i := range names {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			name = strings.ToLower(f.Name)
		}
		names[i] = name
	}
	return names
}

// row formats every field of a struct value, or the value itself.
func (r *Renderer) row(v reflect.Value) []string {
	v = reflect.Indirect(v)
	if v.Kind() != reflect.Struct {
		return []string{r.formatValue(v)}
	}
	cells := make([]string, v.NumField())
	for i := range cells {
		cells[i] = r.formatValue(v.Field(i))
	}
	return cells
}

// formatValue renders one cell. Small string-keyed maps such as error
// kind counts are shown inline as k=v pairs in key order.
func (r *Renderer) formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Sprintf("{%d keys}", v.Len())
		}
		pairs := make([]string, 0, v.Len())
		for _, e := range sortedEntries(v) {
			pairs = append(pairs, e.key+"="+r.formatValue(e.val))
		}
		return strings.Join(pairs, " ")
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			return t.Format(time.RFC3339)
		}
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

type entry struct {
	key string
	val reflect.Value
}

// sortedEntries returns the map's entries ordered by formatted key.
func sortedEntries(v reflect.Value) []entry {
	out := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out = append(out, entry{key: fmt.Sprintf("%v", iter.Key().Interface()), val: iter.Value()})
	}
	slices.SortFunc(out, func(a, b entry) int { return strings.Compare(a.key, b.key) })
	return out
}

// isTTY returns true if f is a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
