package paper

import (
	"sort"
	"time"
)

// VersionLayout is the timestamp layout used by arXivRaw version entries.
const VersionLayout = "Mon, 2 Jan 2006 15:04:05 MST"

// VersionDates parses the creation timestamps of versions in ascending order.
// Entries that do not parse are left out.
func VersionDates(versions []Version) []time.Time {
	dates := make([]time.Time, 0, len(versions))
	for _, v := range versions {
		t, err := time.Parse(VersionLayout, v.Created)
		if err != nil {
			continue
		}
		dates = append(dates, t.UTC())
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Derive recomputes every field that follows from the version history and
// the journal reference. SubmittedDate is only replaced when at least one
// version timestamp parses, so fallback dates set by the caller survive.
func (p *Paper) Derive() {
	p.VersionCount = len(p.Versions)
	p.IsPublished = p.JournalRef != ""

	dates := VersionDates(p.Versions)
	if len(dates) > 0 {
		p.SubmittedDate = NewDate(dates[0])
		if p.IsPublished {
			p.PublishedDate = NewDate(dates[len(dates)-1])
		}
	}
	if !p.IsPublished {
		p.PublishedDate = nil
	}

	p.UpdateFrequency = nil
	if p.VersionCount > 1 && len(dates) > 1 {
		total := dates[len(dates)-1].Sub(dates[0]).Hours() / 24
		freq := total / float64(len(dates)-1)
		p.UpdateFrequency = &freq
	}

	p.SubmissionToPublication = nil
	if p.IsPublished && p.SubmittedDate != nil && p.PublishedDate != nil {
		days := p.SubmittedDate.DaysUntil(*p.PublishedDate)
		p.SubmissionToPublication = &days
	}
}
