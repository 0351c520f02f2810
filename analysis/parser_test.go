package analysis

import (
	"reflect"
	"testing"
)

func TestParseTopicsResponse_TwoBlocks(t *testing.T) {
	t.Parallel()

	text := `RESULT_START
TOPIC
title: Go release chatter
category: tech
summary: Discussion of the new release notes.
keywords: go, release
- generics
participants: ana, bo
message_indices: 1-3, 7
confidence: 0.9
TOPIC
title: Lunch plans
category: life
summary: Picking a restaurant.
message_count: 4
RESULT_END`

	res := ParseTopicsResponse(text, DefaultCategories)
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings=%v, want none", res.Warnings)
	}
	if len(res.Topics) != 2 {
		t.Fatalf("len(topics)=%d, want 2", len(res.Topics))
	}

	first := res.Topics[0]
	if first.Title != "Go release chatter" || first.Category != "tech" {
		t.Fatalf("first=%+v", first)
	}
	if want := []string{"go", "release", "generics"}; !reflect.DeepEqual(first.Keywords, want) {
		t.Fatalf("keywords=%v, want %v", first.Keywords, want)
	}
	if want := []int{1, 2, 3, 7}; !reflect.DeepEqual(first.MessageIndices, want) {
		t.Fatalf("indices=%v, want %v", first.MessageIndices, want)
	}
	if first.MessageCount != 4 {
		t.Fatalf("count=%d, want 4 (len of indices)", first.MessageCount)
	}
	if first.Confidence != 0.9 {
		t.Fatalf("confidence=%v, want 0.9", first.Confidence)
	}

	second := res.Topics[1]
	if second.Title != "Lunch plans" || second.Category != "life" || second.MessageCount != 4 {
		t.Fatalf("second=%+v", second)
	}
}

func TestParseTopicsResponse_DefaultsApplied(t *testing.T) {
	t.Parallel()

	text := `TOPIC
summary: something happened
category: nonsense
confidence: 7`

	res := ParseTopicsResponse(text, DefaultCategories)
	if len(res.Topics) != 1 {
		t.Fatalf("len(topics)=%d, want 1", len(res.Topics))
	}
	got := res.Topics[0]
	if got.Title != "untitled topic" {
		t.Fatalf("title=%q, want default", got.Title)
	}
	if got.Category != CategoryOther {
		t.Fatalf("category=%q, want %q for unknown value", got.Category, CategoryOther)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("confidence=%v, want clamp to 1.0", got.Confidence)
	}
}

func TestParseTopicsResponse_NoBlocksWarning(t *testing.T) {
	t.Parallel()

	res := ParseTopicsResponse("The chat mostly discussed dinner plans.", DefaultCategories)
	if len(res.Topics) != 0 {
		t.Fatalf("topics=%v, want none", res.Topics)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarnNoTopicBlocks {
		t.Fatalf("warnings=%v, want [%s]", res.Warnings, WarnNoTopicBlocks)
	}
}

func TestParseTopicsResponse_BareTopicMarkerWarning(t *testing.T) {
	t.Parallel()

	res := ParseTopicsResponse("TOPIC\n\nTOPIC\n", DefaultCategories)
	if len(res.Topics) != 0 {
		t.Fatalf("topics=%v, want none (no recognized fields)", res.Topics)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarnNoTopicsParsed {
		t.Fatalf("warnings=%v, want [%s]", res.Warnings, WarnNoTopicsParsed)
	}
}

func TestParseTopicsResponse_EnvelopeAndPreambleStripped(t *testing.T) {
	t.Parallel()

	text := `Sure, here is the analysis you asked for:
RESULT_START
TOPIC
title: Only topic
RESULT_END
Let me know if you need anything else.`

	res := ParseTopicsResponse(text, DefaultCategories)
	if len(res.Topics) != 1 || res.Topics[0].Title != "Only topic" {
		t.Fatalf("topics=%+v, want the single enveloped topic", res.Topics)
	}
}

func TestParseTopicsResponse_ScalarContinuation(t *testing.T) {
	t.Parallel()

	text := `TOPIC
title: Long plans
summary: first half of the summary
and the second half on its own line`

	res := ParseTopicsResponse(text, DefaultCategories)
	if len(res.Topics) != 1 {
		t.Fatalf("len(topics)=%d, want 1", len(res.Topics))
	}
	want := "first half of the summary and the second half on its own line"
	if got := res.Topics[0].Summary; got != want {
		t.Fatalf("summary=%q, want %q", got, want)
	}
}

func TestParseTopicsResponse_ListDedupe(t *testing.T) {
	t.Parallel()

	text := `TOPIC
title: Dupes
participants: Ana, bo
- ana
- Bo
message_indices: 2, 2, 1-2`

	res := ParseTopicsResponse(text, DefaultCategories)
	if len(res.Topics) != 1 {
		t.Fatalf("len(topics)=%d, want 1", len(res.Topics))
	}
	got := res.Topics[0]
	if len(got.Participants) != 2 {
		t.Fatalf("participants=%v, want case-insensitive dedupe to 2", got.Participants)
	}
	if want := []int{2, 1}; !reflect.DeepEqual(got.MessageIndices, want) {
		t.Fatalf("indices=%v, want %v", got.MessageIndices, want)
	}
}
