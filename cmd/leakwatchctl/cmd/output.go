package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Output format constants.
const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// printStructured writes v as JSON or YAML when the format asks for it and
// reports whether it did.
func printStructured(w io.Writer, format string, v any) bool {
	switch format {
	case outputJSON:
		printJSON(w, v)
	case outputYAML:
		printYAML(w, v)
	default:
		return false
	}
	return true
}

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "Error: marshal JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

// printYAML goes through JSON first so the json tags of the API types apply.
func printYAML(w io.Writer, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(w, "Error: marshal YAML: %v\n", err)
		return
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		fmt.Fprintf(w, "Error: marshal YAML: %v\n", err)
		return
	}
	data, err := yaml.Marshal(generic)
	if err != nil {
		fmt.Fprintf(w, "Error: marshal YAML: %v\n", err)
		return
	}
	fmt.Fprint(w, string(data))
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

type tableWriter struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer, headers ...string) *tableWriter {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	return &tableWriter{w: w}
}

func (t *tableWriter) AddRow(values ...string) {
	fmt.Fprintln(t.w, strings.Join(values, "\t"))
}

func (t *tableWriter) Flush() {
	_ = t.w.Flush()
}

func ptrStr(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func shortTime(t string) string {
	if len(t) >= 19 {
		return t[:19]
	}
	return t
}

func boolToStr(b bool) string {
	return strconv.FormatBool(b)
}

func percent(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', 1, 64) + "%"
}
