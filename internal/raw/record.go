// Package raw defines the harvested metadata records as they are stored
// before transformation, and their JSON lines encoding.
package raw

import "fmt"

// Format is an OAI-PMH metadata format.
type Format string

// Supported metadata formats.
const (
	FormatArXiv    Format = "arXiv"
	FormatArXivRaw Format = "arXivRaw"
)

// Formats lists the formats harvested for every paper.
var Formats = []Format{FormatArXiv, FormatArXivRaw}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatArXiv, FormatArXivRaw:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown metadata format %q", s)
}

// Record is one harvested record. Fields not carried by a format are empty.
type Record struct {
	// Format is set by the reader from the file location.
	Format Format `json:"-"`

	ID            string   `json:"id"`
	OAIIdentifier string   `json:"oai_identifier,omitempty"`
	Datestamp     string   `json:"datestamp,omitempty"`
	SetSpecs      []string `json:"setSpecs,omitempty"`

	// arXiv
	Title         string     `json:"title,omitempty"`
	Categories    string     `json:"categories,omitempty"`
	Abstract      string     `json:"abstract,omitempty"`
	UpdateDate    string     `json:"update_date,omitempty"`
	DOI           string     `json:"doi,omitempty"`
	JournalRef    string     `json:"journal_ref,omitempty"`
	AuthorsParsed [][]string `json:"authors_parsed,omitempty"`

	// arXivRaw
	Submitter string    `json:"submitter,omitempty"`
	Authors   string    `json:"authors,omitempty"`
	Versions  []Version `json:"versions,omitempty"`
}

// Version is an arXivRaw version entry.
type Version struct {
	Version string `json:"version"`
	Created string `json:"created"`
}
