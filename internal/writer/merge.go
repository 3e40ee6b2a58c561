package writer

import "github.com/paperflow/arxetl/internal/paper"

// Merge folds incoming into existing.
//
//   - empty incoming values never replace stored ones
//   - authors are replaced only by a non-empty list
//   - categories are the union of both lists
//   - versions are merged by label, incoming winning
//   - last_processed always comes from incoming
//
// Every other set field replaces the stored value. Fields derived from the
// version history are recomputed from the merged versions.
func Merge(existing, incoming paper.Paper) paper.Paper {
	merged := existing

	mergeString(&merged.PaperID, incoming.PaperID)
	mergeString(&merged.Title, incoming.Title)
	mergeString(&merged.Abstract, incoming.Abstract)
	mergeString(&merged.DOI, incoming.DOI)
	mergeString(&merged.JournalRef, incoming.JournalRef)
	mergeString(&merged.PrimaryCategory, incoming.PrimaryCategory)
	mergeString(&merged.Institution, incoming.Institution)

	if len(incoming.Authors) > 0 {
		merged.Authors = append([]paper.Author(nil), incoming.Authors...)
	}
	merged.Categories = unionCategories(existing.Categories, incoming.Categories)
	merged.Versions = mergeVersions(existing.Versions, incoming.Versions)

	if incoming.SubmittedDate != nil {
		merged.SubmittedDate = incoming.SubmittedDate
	}
	if incoming.PublishedDate != nil {
		merged.PublishedDate = incoming.PublishedDate
	}
	if incoming.UpdateDate != nil {
		merged.UpdateDate = incoming.UpdateDate
	}
	if incoming.UpdateFrequency != nil {
		merged.UpdateFrequency = incoming.UpdateFrequency
	}
	if incoming.SubmissionToPublication != nil {
		merged.SubmissionToPublication = incoming.SubmissionToPublication
	}

	merged.LastProcessed = incoming.LastProcessed

	merged.Derive()
	return merged
}

func mergeString(dst *string, incoming string) {
	if incoming != "" {
		*dst = incoming
	}
}

// unionCategories keeps existing order and appends unseen incoming tags.
func unionCategories(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	var out []string
	for _, list := range [][]string{existing, incoming} {
		for _, c := range list {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// mergeVersions overlays incoming on existing by label. Labels keep the
// position of their first appearance; entries without a label are dropped.
func mergeVersions(existing, incoming []paper.Version) []paper.Version {
	index := make(map[string]int, len(existing)+len(incoming))
	var out []paper.Version
	for _, list := range [][]paper.Version{existing, incoming} {
		for _, v := range list {
			if v.Version == "" {
				continue
			}
			if i, ok := index[v.Version]; ok {
				out[i] = v
				continue
			}
			index[v.Version] = len(out)
			out = append(out, v)
		}
	}
	return out
}
