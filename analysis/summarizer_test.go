package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// queueProvider replays scripted responses in order, repeating the last one
// once the script runs out.
type queueProvider struct {
	responses []string
	calls     int
}

func (p *queueProvider) Invoke(ctx context.Context, prompt Prompt) (string, CompletionMeta, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i], CompletionMeta{}, nil
}

type failingProvider struct{}

func (failingProvider) Invoke(ctx context.Context, prompt Prompt) (string, CompletionMeta, error) {
	return "", CompletionMeta{}, &ProviderError{Class: ErrClassAuth, Err: errors.New("401")}
}

type panicProvider struct{}

func (panicProvider) Invoke(ctx context.Context, prompt Prompt) (string, CompletionMeta, error) {
	panic("boom")
}

func testSummarizer(p CompletionProvider) *Summarizer {
	f := testFormatter()
	return NewSummarizer(DefaultSummarizerConfig(), f, NewChunker(f), newTestClient(p), nil, testLogger())
}

func TestSummarizer_NormalCluster(t *testing.T) {
	t.Parallel()

	p := &queueProvider{responses: []string{
		"TOPIC\nsummary: people discussed the release\nkeywords: go, release",
		"RESULT_START\nTOPIC\ntitle: Release talk\ncategory: tech\nsummary: merged summary\nconfidence: 0.8\nRESULT_END",
	}}
	s := testSummarizer(p)

	msgs := testMessages(4)
	clusters := []Cluster{{ID: 0, MessageIDs: []string{"m1", "m2", "m3", "m4"}}}

	topics := s.SummarizeClusters(context.Background(), clusters, msgs)
	if len(topics) != 1 {
		t.Fatalf("len(topics)=%d, want 1", len(topics))
	}
	got := topics[0]
	if got.Title != "Release talk" || got.Category != "tech" {
		t.Fatalf("topic=%+v", got)
	}
	if got.Confidence != 0.8 {
		t.Fatalf("confidence=%v, want 0.8", got.Confidence)
	}
	if got.MessageCount != 4 || len(got.MessageIDs) != 4 {
		t.Fatalf("count=%d ids=%v, want all 4 members", got.MessageCount, got.MessageIDs)
	}
	if len(got.Participants) != 1 || got.Participants[0] != "ana" {
		t.Fatalf("participants=%v", got.Participants)
	}
	// Chunk-phase keywords survive the reduce.
	joined := strings.Join(got.Keywords, ",")
	if !strings.Contains(joined, "go") || !strings.Contains(joined, "release") {
		t.Fatalf("keywords=%v", got.Keywords)
	}
}

func TestSummarizer_NoiseLowCountIsTentative(t *testing.T) {
	t.Parallel()

	p := &queueProvider{responses: []string{
		"TOPIC\nsummary: scattered remarks",
		"TOPIC\ntitle: Loose ends\ncategory: other\nsummary: odds and ends\nconfidence: 0.9",
	}}
	s := testSummarizer(p)

	msgs := testMessages(2)
	clusters := []Cluster{{ID: NoiseClusterID, MessageIDs: []string{"m1", "m2"}}}

	topics := s.SummarizeClusters(context.Background(), clusters, msgs)
	if len(topics) != 1 {
		t.Fatalf("len(topics)=%d, want 1", len(topics))
	}
	got := topics[0]
	if got.Confidence > noiseLowCountConfidence {
		t.Fatalf("confidence=%v, want capped at %v", got.Confidence, noiseLowCountConfidence)
	}
	if !strings.Contains(got.Notes, noteLowMessageCount) {
		t.Fatalf("notes=%q, want tentative marker", got.Notes)
	}
}

func TestSummarizer_NoiseNormalCountFixedConfidence(t *testing.T) {
	t.Parallel()

	p := &queueProvider{responses: []string{
		"TOPIC\nsummary: scattered remarks",
		"TOPIC\ntitle: Loose ends\ncategory: other\nsummary: odds and ends\nconfidence: 0.95",
	}}
	s := testSummarizer(p)

	msgs := testMessages(5)
	clusters := []Cluster{{ID: NoiseClusterID, MessageIDs: []string{"m1", "m2", "m3", "m4", "m5"}}}

	topics := s.SummarizeClusters(context.Background(), clusters, msgs)
	if got := topics[0].Confidence; got != noiseConfidence {
		t.Fatalf("confidence=%v, want fixed %v", got, noiseConfidence)
	}
}

func TestSummarizer_NoiseBucketsMergedAndLast(t *testing.T) {
	t.Parallel()

	s := testSummarizer(failingProvider{})
	msgs := testMessages(6)
	clusters := []Cluster{
		{ID: 1, MessageIDs: []string{"m3", "m4"}},
		{ID: NoiseClusterID, MessageIDs: []string{"m5"}},
		{ID: 0, MessageIDs: []string{"m1", "m2"}},
		{ID: NoiseClusterID, MessageIDs: []string{"m6"}},
	}

	topics := s.SummarizeClusters(context.Background(), clusters, msgs)
	if len(topics) != 3 {
		t.Fatalf("len(topics)=%d, want 2 normal + 1 combined noise", len(topics))
	}
	if topics[0].Title != "topic 1" || topics[1].Title != "topic 2" {
		t.Fatalf("titles=%q,%q, want ascending cluster order", topics[0].Title, topics[1].Title)
	}
	last := topics[2]
	if last.Title != noiseFallbackTitle {
		t.Fatalf("last title=%q, want combined noise bucket", last.Title)
	}
	if last.MessageCount != 2 {
		t.Fatalf("noise count=%d, want both noise members", last.MessageCount)
	}
}

func TestSummarizer_ProviderFailureStitchesFallback(t *testing.T) {
	t.Parallel()

	s := testSummarizer(failingProvider{})
	msgs := testMessages(3)
	clusters := []Cluster{{ID: 0, MessageIDs: []string{"m1", "m2", "m3"}}}

	topics := s.SummarizeClusters(context.Background(), clusters, msgs)
	if len(topics) != 1 {
		t.Fatalf("len(topics)=%d, want 1", len(topics))
	}
	got := topics[0]
	if got.Title != "topic 1" {
		t.Fatalf("title=%q, want deterministic fallback", got.Title)
	}
	if got.Category != CategoryOther || got.Confidence != fallbackConfidence {
		t.Fatalf("category=%q confidence=%v", got.Category, got.Confidence)
	}
	if got.MessageCount != 3 {
		t.Fatalf("count=%d, want attribution intact", got.MessageCount)
	}
}

func TestSummarizer_PanicIsolatedToCluster(t *testing.T) {
	t.Parallel()

	s := testSummarizer(panicProvider{})
	msgs := testMessages(2)
	clusters := []Cluster{{ID: 0, MessageIDs: []string{"m1", "m2"}}}

	topics := s.SummarizeClusters(context.Background(), clusters, msgs)
	if len(topics) != 1 {
		t.Fatalf("len(topics)=%d, want fallback topic despite panic", len(topics))
	}
	got := topics[0]
	if got.Notes != noteSummarizeFailed {
		t.Fatalf("notes=%q, want failure marker", got.Notes)
	}
	if got.MessageCount != 2 || len(got.MessageIDs) != 2 {
		t.Fatalf("attribution lost: %+v", got)
	}
}

func TestSummarizer_EmptyClusterFallsBack(t *testing.T) {
	t.Parallel()

	s := testSummarizer(&queueProvider{responses: []string{"TOPIC\ntitle: unused"}})
	clusters := []Cluster{{ID: 0, MessageIDs: []string{"missing"}}}

	topics := s.SummarizeClusters(context.Background(), clusters, nil)
	if len(topics) != 1 {
		t.Fatalf("len(topics)=%d, want 1", len(topics))
	}
	if topics[0].Notes != noteSummarizeFailed {
		t.Fatalf("notes=%q, want failure marker", topics[0].Notes)
	}
}
