package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Fixed note markers that make degraded topics distinguishable downstream.
const (
	noteLowMessageCount  = "low message count, theme is tentative"
	noteSummarizeFailed  = "summarization failed, fallback topic"
	noiseFallbackTitle   = "other discussion"
	untitledTopicPattern = "topic %d"
)

// Noise-bucket confidence policy: below the low-count threshold the topic is
// capped hard; otherwise it gets a fixed middling score.
const (
	noiseLowCountConfidence = 0.3
	noiseConfidence         = 0.5
	fallbackConfidence      = 0.5
)

// SummarizerConfig tunes the per-cluster map-reduce.
type SummarizerConfig struct {
	// MaxMessagesPerCluster caps how many messages one cluster contributes
	// to its prompts, via stride sampling. Zero disables the cap.
	MaxMessagesPerCluster int `yaml:"max_messages_per_cluster"`

	// ChunkTokenBudget bounds each map-phase chunk.
	ChunkTokenBudget int `yaml:"chunk_token_budget"`

	// NoiseLowCountThreshold is the member count below which a noise topic
	// is marked tentative.
	NoiseLowCountThreshold int `yaml:"noise_low_count_threshold"`

	// Categories is the closed category set; empty means DefaultCategories.
	Categories []string `yaml:"categories"`
}

// DefaultSummarizerConfig returns the tuning used in production runs.
func DefaultSummarizerConfig() SummarizerConfig {
	return SummarizerConfig{
		MaxMessagesPerCluster:  200,
		ChunkTokenBudget:       2000,
		NoiseLowCountThreshold: 3,
		Categories:             DefaultCategories,
	}
}

// Summarizer turns clusters into Topics: sample, chunk by token budget,
// summarize each chunk (map), merge the chunk summaries into one record
// (reduce). Failures degrade per cluster; one cluster can never abort its
// siblings.
type Summarizer struct {
	cfg     SummarizerConfig
	fmt     *Formatter
	chunker *Chunker
	llm     *LLMClient
	debug   *DebugWriter
	log     zerolog.Logger
}

// NewSummarizer wires a summarizer. debug may be nil.
func NewSummarizer(cfg SummarizerConfig, f *Formatter, chunker *Chunker, llm *LLMClient, debug *DebugWriter, log zerolog.Logger) *Summarizer {
	if cfg.ChunkTokenBudget <= 0 {
		cfg.ChunkTokenBudget = DefaultSummarizerConfig().ChunkTokenBudget
	}
	if cfg.NoiseLowCountThreshold <= 0 {
		cfg.NoiseLowCountThreshold = DefaultSummarizerConfig().NoiseLowCountThreshold
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories
	}
	return &Summarizer{cfg: cfg, fmt: f, chunker: chunker, llm: llm, debug: debug, log: log}
}

// SummarizeClusters produces one Topic per cluster. Clusters are processed
// in ascending id order; all noise clusters are first merged into one
// combined bucket and processed last with the common-theme prompt.
func (s *Summarizer) SummarizeClusters(ctx context.Context, clusters []Cluster, msgs []Message) []Topic {
	byID := make(map[string]Message, len(msgs))
	for _, m := range msgs {
		byID[m.MsgID] = m
	}

	var normal []Cluster
	var noiseIDs []string
	for _, c := range clusters {
		if c.IsNoise() {
			noiseIDs = append(noiseIDs, c.MessageIDs...)
			continue
		}
		normal = append(normal, c)
	}
	sort.Slice(normal, func(i, j int) bool { return normal[i].ID < normal[j].ID })

	topics := make([]Topic, 0, len(normal)+1)
	for _, c := range normal {
		topics = append(topics, s.summarizeOne(ctx, c, resolve(byID, c.MessageIDs)))
	}
	if len(noiseIDs) > 0 {
		noise := Cluster{ID: NoiseClusterID, MessageIDs: noiseIDs}
		topics = append(topics, s.summarizeOne(ctx, noise, resolve(byID, noiseIDs)))
	}
	return topics
}

// summarizeOne runs the whole per-cluster pipeline, converting any error or
// panic into the fallback topic so sibling clusters keep going.
func (s *Summarizer) summarizeOne(ctx context.Context, c Cluster, members []Message) (topic Topic) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Int("cluster", c.ID).Any("panic", r).Msg("cluster summarization panicked")
			topic = s.fallbackTopic(c, members)
		}
	}()

	t, err := s.trySummarize(ctx, c, members)
	if err != nil {
		s.log.Warn().Int("cluster", c.ID).Err(err).Msg("cluster summarization failed")
		return s.fallbackTopic(c, members)
	}
	return t
}

func (s *Summarizer) trySummarize(ctx context.Context, c Cluster, members []Message) (Topic, error) {
	selected := SelectForSummary(members, s.cfg.MaxMessagesPerCluster)
	chunks := s.chunker.ChunkByTokens(selected, s.cfg.ChunkTokenBudget)
	if len(chunks) == 0 {
		return Topic{}, fmt.Errorf("trySummarize: cluster %d has no messages", c.ID)
	}

	// Map phase: one summary per chunk, in order. A failed chunk contributes
	// empty strings rather than aborting the cluster.
	var summaries, notes, keywords []string
	for i, chunk := range chunks {
		summary, note, kws := s.summarizeChunk(ctx, c.ID, chunk, i+1, len(chunks))
		summaries = append(summaries, summary)
		notes = append(notes, note)
		keywords = append(keywords, kws...)
	}

	topic := s.mergeChunkSummaries(ctx, c, summaries, notes, keywords)

	topic.MessageIDs = append([]string(nil), c.MessageIDs...)
	topic.MessageCount = len(members)
	topic.Participants = Participants(members)
	topic.TimeRange = FormatTimeRange(members)
	topic.Confidence = ClampConfidence(topic.Confidence)

	if c.IsNoise() {
		if len(members) < s.cfg.NoiseLowCountThreshold {
			if topic.Confidence > noiseLowCountConfidence {
				topic.Confidence = noiseLowCountConfidence
			}
			topic.Notes = appendNote(topic.Notes, noteLowMessageCount)
		} else {
			topic.Confidence = noiseConfidence
		}
	}

	s.debug.WriteMerge(c.ID, summaries, topic)
	return topic, nil
}

// summarizeChunk is one map-phase call. Errors and empty parses degrade to
// empty strings.
func (s *Summarizer) summarizeChunk(ctx context.Context, clusterID int, chunk []Message, num, total int) (summary, note string, keywords []string) {
	lines := make([]string, 0, len(chunk))
	for _, m := range chunk {
		if line := s.fmt.FormatForSummary(m); line != "" {
			lines = append(lines, line)
		}
	}

	defer func() {
		s.debug.WriteChunk(clusterID, num, lines, summary, note)
	}()

	text, _, err := s.llm.Invoke(ctx, buildChunkPrompt(s.fmt, chunk, num, total))
	if err != nil {
		s.log.Warn().Int("cluster", clusterID).Int("chunk", num).Err(err).Msg("chunk summarization failed")
		return "", "", nil
	}
	parsed := ParseTopicsResponse(text, s.cfg.Categories)
	if len(parsed.Topics) == 0 {
		s.log.Debug().Int("cluster", clusterID).Int("chunk", num).
			Strs("warnings", parsed.Warnings).Msg("chunk response had no topic block")
		return "", "", nil
	}
	first := parsed.Topics[0]
	return first.Summary, first.Notes, first.Keywords
}

// mergeChunkSummaries is the reduce phase. When the merge call fails or
// parses to nothing usable, the chunk outputs are stitched together
// deterministically instead.
func (s *Summarizer) mergeChunkSummaries(ctx context.Context, c Cluster, summaries, notes, keywords []string) Topic {
	nonEmptySummaries := compactStrings(summaries)
	nonEmptyNotes := compactStrings(notes)

	text, _, err := s.llm.Invoke(ctx, buildMergePrompt(nonEmptySummaries, nonEmptyNotes, s.cfg.Categories, c.IsNoise()))
	if err == nil {
		parsed := ParseTopicsResponse(text, s.cfg.Categories)
		if len(parsed.Topics) > 0 {
			first := parsed.Topics[0]
			return Topic{
				Title:      first.Title,
				Category:   first.Category,
				Summary:    first.Summary,
				Keywords:   dedupeStrings(append(first.Keywords, keywords...)),
				Confidence: first.Confidence,
				Notes:      first.Notes,
			}
		}
		s.log.Debug().Int("cluster", c.ID).Strs("warnings", parsed.Warnings).Msg("merge response had no topic block")
	} else {
		s.log.Warn().Int("cluster", c.ID).Err(err).Msg("merge call failed, stitching chunk summaries")
	}

	kws := dedupeStrings(keywords)
	title := s.deterministicTitle(c, kws)
	return Topic{
		Title:      title,
		Category:   CategoryOther,
		Summary:    strings.Join(nonEmptySummaries, "；"),
		Keywords:   kws,
		Confidence: fallbackConfidence,
		Notes:      strings.Join(nonEmptyNotes, "；"),
	}
}

func (s *Summarizer) deterministicTitle(c Cluster, keywords []string) string {
	if len(keywords) > 0 {
		n := len(keywords)
		if n > 3 {
			n = 3
		}
		return strings.Join(keywords[:n], " / ")
	}
	if c.IsNoise() {
		return noiseFallbackTitle
	}
	return fmt.Sprintf(untitledTopicPattern, c.ID+1)
}

// fallbackTopic is the degraded record for a cluster whose whole pipeline
// failed. It keeps the attribution intact so the run's topic list is still
// complete.
func (s *Summarizer) fallbackTopic(c Cluster, members []Message) Topic {
	title := fmt.Sprintf(untitledTopicPattern, c.ID+1)
	confidence := fallbackConfidence
	if c.IsNoise() {
		title = noiseFallbackTitle
		confidence = noiseLowCountConfidence
	}
	return Topic{
		Title:        title,
		Category:     CategoryOther,
		Summary:      "",
		TimeRange:    FormatTimeRange(members),
		Participants: Participants(members),
		MessageCount: len(members),
		MessageIDs:   append([]string(nil), c.MessageIDs...),
		Confidence:   confidence,
		Notes:        noteSummarizeFailed,
	}
}

func resolve(byID map[string]Message, ids []string) []Message {
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func appendNote(notes, extra string) string {
	if strings.TrimSpace(notes) == "" {
		return extra
	}
	return notes + "；" + extra
}
