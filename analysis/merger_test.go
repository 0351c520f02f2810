package analysis

import (
	"reflect"
	"testing"
)

type alwaysMerge struct{}

func (alwaysMerge) ShouldMerge(a, b Topic) bool { return true }

func TestMergeTopics_NeverMergeLeavesInputAlone(t *testing.T) {
	t.Parallel()

	topics := []Topic{
		{Title: "a", Confidence: 0.9},
		{Title: "b", Confidence: 0.8},
	}
	got, log := MergeTopics(topics, NeverMergeStrategy{})
	if !reflect.DeepEqual(got, topics) {
		t.Fatalf("got %+v, want unchanged", got)
	}
	if len(log) != 0 {
		t.Fatalf("log=%v, want empty", log)
	}
}

func TestMergeTopics_AlwaysMergeCollapsesToOne(t *testing.T) {
	t.Parallel()

	topics := []Topic{
		{Title: "a", Confidence: 0.9, MessageIDs: []string{"m1"}},
		{Title: "b", Confidence: 0.8, MessageIDs: []string{"m2"}},
		{Title: "c", Confidence: 0.7, MessageIDs: []string{"m3"}},
	}
	got, log := MergeTopics(topics, alwaysMerge{})
	if len(got) != 1 {
		t.Fatalf("len(got)=%d, want 1", len(got))
	}
	if len(log) != 2 {
		t.Fatalf("len(log)=%d, want one entry per merge", len(log))
	}
	if got[0].Title != "a" {
		t.Fatalf("title=%q, want highest-confidence topic to lead", got[0].Title)
	}
	if len(got[0].MessageIDs) != 3 {
		t.Fatalf("ids=%v, want union of members", got[0].MessageIDs)
	}
	if got[0].Confidence != 0.7 {
		t.Fatalf("confidence=%v, want minimum of constituents", got[0].Confidence)
	}
}

func TestMergeTopics_KeywordOverlap(t *testing.T) {
	t.Parallel()

	topics := []Topic{
		{Title: "Go release", Confidence: 0.9, Keywords: []string{"go", "release", "generics"}},
		{Title: "Release notes", Confidence: 0.8, Keywords: []string{"Go", "Release"}},
		{Title: "Lunch", Confidence: 0.7, Keywords: []string{"lunch", "restaurant"}},
	}
	got, log := MergeTopics(topics, KeywordOverlapStrategy{Threshold: 0.5})
	if len(got) != 2 {
		t.Fatalf("len(got)=%d, want overlapping pair merged, lunch untouched", len(got))
	}
	if len(log) != 1 || log[0].Result != "Go release" {
		t.Fatalf("log=%v", log)
	}
	if got[0].Title != "Go release" || got[1].Title != "Lunch" {
		t.Fatalf("titles=%q,%q", got[0].Title, got[1].Title)
	}
}

func TestMergeTopics_Idempotent(t *testing.T) {
	t.Parallel()

	topics := []Topic{
		{Title: "a", Confidence: 0.9, Keywords: []string{"x", "y"}},
		{Title: "b", Confidence: 0.8, Keywords: []string{"x", "y"}},
		{Title: "c", Confidence: 0.7, Keywords: []string{"z"}},
	}
	once, _ := MergeTopics(topics, KeywordOverlapStrategy{})
	twice, log := MergeTopics(once, KeywordOverlapStrategy{})
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second pass changed output: %+v vs %+v", once, twice)
	}
	if len(log) != 0 {
		t.Fatalf("second pass log=%v, want empty", log)
	}
}

func TestMergeTopics_NilStrategy(t *testing.T) {
	t.Parallel()

	topics := []Topic{{Title: "a"}, {Title: "b"}}
	got, log := MergeTopics(topics, nil)
	if len(got) != 2 || len(log) != 0 {
		t.Fatalf("got=%v log=%v, want unchanged", got, log)
	}
}

func TestComposeTopics_FieldPolicy(t *testing.T) {
	t.Parallel()

	a := Topic{
		Title:        "low",
		Category:     "life",
		Summary:      "first",
		TimeRange:    "2024-03-01 10:00 - 11:00",
		Participants: []string{"bo"},
		MessageIDs:   []string{"m1", "m2"},
		Keywords:     []string{"x"},
		Confidence:   0.4,
		Notes:        "note a",
	}
	b := Topic{
		Title:        "high",
		Category:     "tech",
		Summary:      "second",
		TimeRange:    "2024-03-01 12:00 - 13:00",
		Participants: []string{"ana", "bo"},
		MessageIDs:   []string{"m2", "m3"},
		Keywords:     []string{"y"},
		Confidence:   0.8,
		Notes:        "note b",
	}

	got := composeTopics(a, b)
	if got.Title != "high" || got.Category != "tech" || got.TimeRange != b.TimeRange {
		t.Fatalf("primary fields should follow the higher-confidence topic: %+v", got)
	}
	if got.Confidence != 0.4 {
		t.Fatalf("confidence=%v, want minimum", got.Confidence)
	}
	if want := []string{"m1", "m2", "m3"}; !reflect.DeepEqual(got.MessageIDs, want) {
		t.Fatalf("ids=%v, want %v", got.MessageIDs, want)
	}
	if got.MessageCount != 3 {
		t.Fatalf("count=%d, want len of id union", got.MessageCount)
	}
	if want := []string{"ana", "bo"}; !reflect.DeepEqual(got.Participants, want) {
		t.Fatalf("participants=%v, want sorted union", got.Participants)
	}
	if got.Summary != "second；first" {
		t.Fatalf("summary=%q", got.Summary)
	}
	if got.Notes != "note b；note a" {
		t.Fatalf("notes=%q", got.Notes)
	}
}
