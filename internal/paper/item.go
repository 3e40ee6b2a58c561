package paper

import (
	"fmt"

	"github.com/paperflow/arxetl/internal/item"
)

// Fields returns the record as plain values keyed by attribute name.
// Unknown dates and metrics are nil.
func (p Paper) Fields() map[string]any {
	authors := make([]any, len(p.Authors))
	for i, a := range p.Authors {
		authors[i] = map[string]any{
			"last_name":  a.LastName,
			"first_name": a.FirstName,
		}
	}
	versions := make([]any, len(p.Versions))
	for i, v := range p.Versions {
		versions[i] = map[string]any{
			"version": v.Version,
			"created": v.Created,
		}
	}

	return map[string]any{
		"paper_id":                  p.PaperID,
		"title":                     p.Title,
		"abstract":                  p.Abstract,
		"doi":                       p.DOI,
		"journal_ref":               p.JournalRef,
		"categories":                p.Categories,
		"primary_category":          p.PrimaryCategory,
		"authors":                   authors,
		"institution":               p.Institution,
		"versions":                  versions,
		"version_count":             p.VersionCount,
		"submitted_date":            dateValue(p.SubmittedDate),
		"published_date":            dateValue(p.PublishedDate),
		"update_date":               dateValue(p.UpdateDate),
		"is_published":              p.IsPublished,
		"update_frequency":          p.UpdateFrequency,
		"submission_to_publication": p.SubmissionToPublication,
		"last_processed":            p.LastProcessed,
	}
}

func dateValue(d *Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// Item converts the record into its stored form.
func (p Paper) Item() (item.Item, []item.Warning) {
	return item.Convert(p.Fields())
}

// FromItem rebuilds a record from its stored form.
func FromItem(it item.Item) (Paper, error) {
	p := Paper{
		PaperID:         it.String("paper_id"),
		Title:           it.String("title"),
		Abstract:        it.String("abstract"),
		DOI:             it.String("doi"),
		JournalRef:      it.String("journal_ref"),
		Categories:      it.Strings("categories"),
		PrimaryCategory: it.String("primary_category"),
		Institution:     it.String("institution"),
		IsPublished:     it.Bool("is_published"),
		LastProcessed:   it.String("last_processed"),
	}
	if p.PaperID == "" {
		return Paper{}, fmt.Errorf("item has no paper_id")
	}

	for _, m := range it.Maps("authors") {
		last, _ := m["last_name"].(string)
		first, _ := m["first_name"].(string)
		p.Authors = append(p.Authors, Author{LastName: last, FirstName: first})
	}
	for _, m := range it.Maps("versions") {
		label, _ := m["version"].(string)
		created, _ := m["created"].(string)
		p.Versions = append(p.Versions, Version{Version: label, Created: created})
	}

	if n, ok := it.Number("version_count"); ok {
		count, err := n.Int()
		if err != nil {
			return Paper{}, fmt.Errorf("paper %s: version_count: %w", p.PaperID, err)
		}
		p.VersionCount = int(count)
	}

	var err error
	if p.SubmittedDate, err = itemDate(it, "submitted_date"); err != nil {
		return Paper{}, fmt.Errorf("paper %s: %w", p.PaperID, err)
	}
	if p.PublishedDate, err = itemDate(it, "published_date"); err != nil {
		return Paper{}, fmt.Errorf("paper %s: %w", p.PaperID, err)
	}
	if p.UpdateDate, err = itemDate(it, "update_date"); err != nil {
		return Paper{}, fmt.Errorf("paper %s: %w", p.PaperID, err)
	}
	if p.UpdateFrequency, err = itemFloat(it, "update_frequency"); err != nil {
		return Paper{}, fmt.Errorf("paper %s: %w", p.PaperID, err)
	}
	if p.SubmissionToPublication, err = itemFloat(it, "submission_to_publication"); err != nil {
		return Paper{}, fmt.Errorf("paper %s: %w", p.PaperID, err)
	}
	return p, nil
}

func itemDate(it item.Item, key string) (*Date, error) {
	s := it.String(key)
	if s == "" {
		return nil, nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func itemFloat(it item.Item, key string) (*float64, error) {
	n, ok := it.Number(key)
	if !ok {
		return nil, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &f, nil
}
