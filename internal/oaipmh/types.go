package oaipmh

import (
	"encoding/xml"
	"sort"
	"strings"

	"github.com/paperflow/arxetl/internal/raw"
)

// Response is the OAI-PMH envelope.
type Response struct {
	XMLName      xml.Name     `xml:"OAI-PMH"`
	ResponseDate string       `xml:"responseDate"`
	Error        *ErrorElem   `xml:"error"`
	ListRecords  *ListRecords `xml:"ListRecords"`
}

// ErrorElem is an OAI-PMH error element.
type ErrorElem struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// ListRecords is the body of a ListRecords response.
type ListRecords struct {
	Records         []Record         `xml:"record"`
	ResumptionToken *ResumptionToken `xml:"resumptionToken"`
}

// ResumptionToken continues a partial list. An empty token ends the list.
type ResumptionToken struct {
	Token            string `xml:",chardata"`
	CompleteListSize string `xml:"completeListSize,attr"`
	Cursor           string `xml:"cursor,attr"`
}

// Record is one harvested record with the metadata of a single format.
type Record struct {
	Header   Header   `xml:"header"`
	Metadata Metadata `xml:"metadata"`
}

// Header is the record header.
type Header struct {
	Status     string   `xml:"status,attr"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpecs   []string `xml:"setSpec"`
}

// Deleted reports a tombstone record.
func (h Header) Deleted() bool { return h.Status == "deleted" }

// Metadata holds whichever format was requested.
type Metadata struct {
	ArXiv    *ArXiv    `xml:"arXiv"`
	ArXivRaw *ArXivRaw `xml:"arXivRaw"`
}

// ArXiv is the structured arXiv metadata format.
type ArXiv struct {
	ID         string        `xml:"id"`
	Created    string        `xml:"created"`
	Updated    string        `xml:"updated"`
	Authors    []ArXivAuthor `xml:"authors>author"`
	Title      string        `xml:"title"`
	Categories string        `xml:"categories"`
	Comments   string        `xml:"comments"`
	JournalRef string        `xml:"journal-ref"`
	DOI        string        `xml:"doi"`
	License    string        `xml:"license"`
	Abstract   string        `xml:"abstract"`
}

// ArXivAuthor is an author of the arXiv format.
type ArXivAuthor struct {
	Keyname   string `xml:"keyname"`
	Forenames string `xml:"forenames"`
	Suffix    string `xml:"suffix"`
}

// ArXivRaw is the arXivRaw format, which carries the version history.
type ArXivRaw struct {
	ID         string       `xml:"id"`
	Submitter  string       `xml:"submitter"`
	Versions   []RawVersion `xml:"version"`
	Title      string       `xml:"title"`
	Authors    string       `xml:"authors"`
	Categories string       `xml:"categories"`
	Abstract   string       `xml:"abstract"`
}

// RawVersion is one arXivRaw version entry.
type RawVersion struct {
	Version string `xml:"version,attr"`
	Date    string `xml:"date"`
	Size    string `xml:"size"`
}

// Raw converts the record to its stored form. ok is false when the record
// carries no metadata for format.
func (r Record) Raw(format raw.Format) (rec raw.Record, ok bool) {
	rec = raw.Record{
		Format:        format,
		OAIIdentifier: r.Header.Identifier,
		Datestamp:     strings.TrimSpace(r.Header.Datestamp),
		SetSpecs:      r.Header.SetSpecs,
	}
	switch format {
	case raw.FormatArXiv:
		m := r.Metadata.ArXiv
		if m == nil {
			return rec, false
		}
		rec.ID = strings.TrimSpace(m.ID)
		rec.Title = m.Title
		rec.Categories = m.Categories
		rec.Abstract = m.Abstract
		rec.UpdateDate = strings.TrimSpace(m.Updated)
		rec.DOI = strings.TrimSpace(m.DOI)
		rec.JournalRef = strings.TrimSpace(m.JournalRef)
		for _, a := range m.Authors {
			rec.AuthorsParsed = append(rec.AuthorsParsed, []string{a.Keyname, a.Forenames, ""})
		}
	case raw.FormatArXivRaw:
		m := r.Metadata.ArXivRaw
		if m == nil {
			return rec, false
		}
		rec.ID = strings.TrimSpace(m.ID)
		rec.Submitter = strings.TrimSpace(m.Submitter)
		rec.Authors = strings.TrimSpace(m.Authors)
		for _, v := range m.Versions {
			rec.Versions = append(rec.Versions, raw.Version{
				Version: strings.TrimSpace(v.Version),
				Created: strings.TrimSpace(v.Date),
			})
		}
		sort.SliceStable(rec.Versions, func(i, j int) bool {
			return rec.Versions[i].Version < rec.Versions[j].Version
		})
	default:
		return rec, false
	}
	return rec, true
}
