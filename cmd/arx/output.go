package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/paperflow/arxetl/internal/paper"
)

// Constants for output formatting.
const (
	ListTitleMaxLen = 70 // Used in paper list output
	AuthorsMaxCount = 3  // Authors shown before "et al."
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitAfterResult exits with code once a result carrying err has been
// printed. JSON results already hold the error, so only human output
// repeats it on stderr.
func exitAfterResult(code int, err error) {
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status  string `json:"status"`
	Table   string `json:"table,omitempty"`
	Created bool   `json:"created"`
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// formatAuthorsShort formats authors as "Last F" with "et al." past maxCount.
func formatAuthorsShort(authors []paper.Author, maxCount int) string {
	var names []string
	for i, a := range authors {
		if i >= maxCount {
			names = append(names, "et al.")
			break
		}
		name := a.LastName
		if a.FirstName != "" {
			name += " " + string([]rune(a.FirstName)[0])
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// dateOrDash renders an optional date.
func dateOrDash(d *paper.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

// printPapers writes one line per paper.
func printPapers(papers []paper.Paper) {
	if len(papers) == 0 {
		outputHuman("No papers found\n")
		return
	}
	for _, p := range papers {
		outputHuman("%s  %-10s  %s  %s\n", p.PaperID, dateOrDash(p.UpdateDate), p.PrimaryCategory, truncateString(p.Title, ListTitleMaxLen))
		if len(p.Authors) > 0 {
			outputHuman("    %s\n", formatAuthorsShort(p.Authors, AuthorsMaxCount))
		}
	}
	outputHuman("\n%d papers\n", len(papers))
}

// printPaper writes the details of one paper.
func printPaper(p paper.Paper) {
	outputHuman("%s\n", p.PaperID)
	outputHuman("  Title:       %s\n", p.Title)
	outputHuman("  Authors:     %s\n", formatAuthorsShort(p.Authors, len(p.Authors)))
	outputHuman("  Categories:  %s\n", strings.Join(p.Categories, " "))
	if p.Institution != "" {
		outputHuman("  Institution: %s\n", p.Institution)
	}
	outputHuman("  Submitted:   %s\n", dateOrDash(p.SubmittedDate))
	outputHuman("  Updated:     %s\n", dateOrDash(p.UpdateDate))
	outputHuman("  Versions:    %d\n", p.VersionCount)
	if p.IsPublished {
		outputHuman("  Journal:     %s\n", p.JournalRef)
	}
	if p.DOI != "" {
		outputHuman("  DOI:         %s\n", p.DOI)
	}
}
