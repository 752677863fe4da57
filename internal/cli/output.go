package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"heritagestore/internal/core"
)

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Response is the JSON envelope of every command result.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// Print emits data as JSON, or calls text for the text format.
func (f *OutputFormatter) Print(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return writeJSON(f.Writer, Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// PrintRecord emits a stored record. The text format is the bare record as
// indented JSON, without the envelope.
func (f *OutputFormatter) PrintRecord(rec any) error {
	if f.Format == "json" {
		return writeJSON(f.Writer, Response{Status: "ok", Data: rec})
	}
	return writeJSON(f.Writer, rec)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func writeStatus(w io.Writer, st core.ArtifactStatus) {
	fmt.Fprintf(w, "artifact:          %s\n", st.ArtifactID)
	fmt.Fprintf(w, "title:             %s\n", st.Title)
	fmt.Fprintf(w, "on loan:           %t\n", st.OnLoan)
	fmt.Fprintf(w, "loan:              %s\n", optional(st.LoanRef))
	fmt.Fprintf(w, "current version:   %s\n", optional(st.CurrentVersion))
	fmt.Fprintf(w, "last conservation: %s\n", optional(st.LastConservation))
}
