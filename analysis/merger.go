package analysis

import "strings"

// MergeStrategy is the pure predicate deciding whether two topics are
// near-duplicates. Strategies hold no per-run state.
type MergeStrategy interface {
	ShouldMerge(a, b Topic) bool
}

// MergeLogEntry records one merge for the run's audit trail.
type MergeLogEntry struct {
	TitleA string `json:"title_a"`
	TitleB string `json:"title_b"`
	Result string `json:"result"`
}

// MergeTopics repeatedly merges any pair the strategy accepts until no
// mergeable pair remains. Applying it again to its own output is a no-op
// with an empty log. A nil strategy leaves topics unchanged.
func MergeTopics(topics []Topic, strategy MergeStrategy) ([]Topic, []MergeLogEntry) {
	out := append([]Topic(nil), topics...)
	var log []MergeLogEntry
	if strategy == nil {
		return out, log
	}

	for {
		merged := false
		for i := 0; i < len(out) && !merged; i++ {
			for j := i + 1; j < len(out); j++ {
				if !strategy.ShouldMerge(out[i], out[j]) {
					continue
				}
				combined := composeTopics(out[i], out[j])
				log = append(log, MergeLogEntry{
					TitleA: out[i].Title,
					TitleB: out[j].Title,
					Result: combined.Title,
				})
				out[i] = combined
				out = append(out[:j], out[j+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			return out, log
		}
	}
}

// composeTopics combines two topics into one record. Policy (documented in
// DESIGN.md): list fields union with dedupe; confidence is the minimum of
// the two, since a merged claim is no more certain than either constituent;
// title, category, and time range follow the higher-confidence topic (the
// first on ties); summaries are joined primary-first.
func composeTopics(a, b Topic) Topic {
	primary, secondary := a, b
	if b.Confidence > a.Confidence {
		primary, secondary = b, a
	}

	summary := primary.Summary
	if secondary.Summary != "" && secondary.Summary != primary.Summary {
		if summary == "" {
			summary = secondary.Summary
		} else {
			summary = summary + "；" + secondary.Summary
		}
	}

	messageIDs := dedupeStrings(append(append([]string(nil), a.MessageIDs...), b.MessageIDs...))
	count := len(messageIDs)
	if count == 0 {
		count = a.MessageCount + b.MessageCount
	}

	confidence := a.Confidence
	if b.Confidence < confidence {
		confidence = b.Confidence
	}

	return Topic{
		Title:        primary.Title,
		Category:     primary.Category,
		Summary:      summary,
		TimeRange:    primary.TimeRange,
		Participants: dedupeSortStrings(append(append([]string(nil), a.Participants...), b.Participants...)),
		MessageCount: count,
		Keywords:     dedupeStrings(append(append([]string(nil), primary.Keywords...), secondary.Keywords...)),
		MessageIDs:   messageIDs,
		Confidence:   ClampConfidence(confidence),
		Notes:        joinNotes(primary.Notes, secondary.Notes),
	}
}

func joinNotes(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	default:
		return a + "；" + b
	}
}

// KeywordOverlapStrategy merges topics whose keyword sets overlap enough:
// Jaccard similarity at or above Threshold, case-insensitive.
type KeywordOverlapStrategy struct {
	// Threshold defaults to 0.5 when zero or negative.
	Threshold float64
}

// ShouldMerge implements MergeStrategy.
func (s KeywordOverlapStrategy) ShouldMerge(a, b Topic) bool {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	if len(a.Keywords) == 0 || len(b.Keywords) == 0 {
		return false
	}

	setA := keywordSet(a.Keywords)
	setB := keywordSet(b.Keywords)
	intersection := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return false
	}
	return float64(intersection)/float64(union) >= threshold
}

func keywordSet(keywords []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

// NeverMergeStrategy always declines; it leaves any topic list unchanged.
type NeverMergeStrategy struct{}

// ShouldMerge implements MergeStrategy.
func (NeverMergeStrategy) ShouldMerge(a, b Topic) bool { return false }
