package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/opencitations/doi-corrector/internal/pipeline"
)

// TitleMaxLen bounds titles in human output.
const TitleMaxLen = 70

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RunResponse is the response of the stage commands.
type RunResponse struct {
	RunID      string            `json:"run_id"`
	Dir        string            `json:"dir"`
	Summary    *pipeline.Summary `json:"summary,omitempty"`
	Unfinished []string          `json:"unfinished,omitempty"`
	FailedDOIs []string          `json:"failed_dois,omitempty"`
}

// printSummaryHuman prints the counts of a run summary.
func printSummaryHuman(dir string, s *pipeline.Summary) {
	outputHuman("Run %s\n", s.RunID)
	outputHuman("  output:   %s\n", dir)
	outputHuman("  elapsed:  %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if s.Canceled {
		outputHuman("  canceled: yes\n")
	}

	outputHuman("\nEntities:\n")
	for _, k := range sortedKeys(s.EntityStatus) {
		outputHuman("  %-18s %d\n", k, s.EntityStatus[k])
	}
	outputHuman("\nDOIs:\n")
	for _, k := range sortedKeys(s.DOIStatus) {
		outputHuman("  %-18s %d\n", k, s.DOIStatus[k])
	}

	t := s.Totals
	outputHuman("\nEdges: %d (grouped %d, redirected %d, ambiguous %d, discarded %d, multi-match %d)\n",
		t.Edges, t.Grouped, t.Redirected, t.Ambiguous, t.Discarded, t.MultiMatch)

	if u := s.Unfinished(); len(u) > 0 {
		outputHuman("\nRe-run needed for %d entities:\n", len(u))
		for _, e := range u {
			outputHuman("  %s\n", e)
		}
	}
	if f := s.FailedDOIs(); len(f) > 0 {
		outputHuman("\nFailed lookups: %d DOIs\n", len(f))
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
