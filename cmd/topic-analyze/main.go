// Command topic-analyze runs the full topic pipeline for one chatroom and
// date window: load messages from the JSONL store, embed them, cluster by
// threading or density, summarize each cluster map-reduce style, merge
// near-duplicate topics, and write the topic report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/chat-topics/analysis"
	"github.com/theimaginaryfoundation/chat-topics/analysis/fileutils"
	"github.com/theimaginaryfoundation/chat-topics/analysis/provider"
	"github.com/theimaginaryfoundation/chat-topics/store"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if cfg.File.Provider.APIKey == "" {
		cfg.File.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.File.Provider.APIKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("interrupted")
			os.Exit(130)
		}
		log.Error().Err(err).Msg("analysis failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log zerolog.Logger) error {
	msgStore, err := store.NewMessageStore(cfg.StoreDir)
	if err != nil {
		return err
	}

	from, to := cfg.DateRange()
	msgs, err := msgStore.QueryRange(cfg.ChatroomID, from, to)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no messages for chatroom %s in %s..%s", cfg.ChatroomID, cfg.FromDate, cfg.ToDate)
	}
	log.Info().Str("chatroom", cfg.ChatroomID).Int("messages", len(msgs)).Msg("loaded messages")

	est := analysis.NewTokenEstimator(nil)
	formatter := analysis.NewFormatter(est)

	// Only messages with a non-blank display rendering get embedded and
	// clustered; filtered/blank ones drop out of the run entirely.
	var valid []analysis.Message
	var texts []string
	for _, m := range msgs {
		line := formatter.FormatForDisplay(m)
		if strings.TrimSpace(line) == "" {
			continue
		}
		valid = append(valid, m)
		texts = append(texts, line)
	}
	if len(valid) == 0 {
		return errors.New("no displayable messages to analyze")
	}

	embedProvider, err := provider.NewEmbedding(cfg.File.Provider)
	if err != nil {
		return err
	}

	var index analysis.VectorIndex
	if cfg.VectorIndexPath != "" {
		idx, err := store.OpenVectorIndex(cfg.VectorIndexPath)
		if err != nil {
			return fmt.Errorf("open vector index: %w", err)
		}
		defer idx.Close()
		index = idx
	}

	pipeline := analysis.NewEmbeddingPipeline(embedProvider, index, cfg.File.EmbedBatchSize, log)
	vecs, err := pipeline.EmbedDocuments(ctx, texts)
	if err != nil {
		// Nothing downstream can proceed without vectors; classify and fail
		// the whole run.
		return fmt.Errorf("embedding service failed (%s): %w", analysis.Classify(err), err)
	}
	pipeline.Persist(ctx, cfg.ChatroomID, valid, vecs)
	log.Info().Int("vectors", len(vecs)).Int("batch_size", pipeline.EffectiveBatchSize()).Msg("embedded messages")

	clusters, err := clusterMessages(cfg, valid, vecs, log)
	if err != nil {
		return err
	}
	log.Info().Str("mode", cfg.Mode).Int("clusters", len(clusters)).Msg("clustered messages")

	completion, err := provider.NewCompletion(cfg.File.Provider)
	if err != nil {
		return err
	}
	llm := analysis.NewLLMClient(completion, log)
	debug := analysis.NewDebugWriter(cfg.DebugDir, log)
	summarizer := analysis.NewSummarizer(cfg.File.Summarizer, formatter, analysis.NewChunker(formatter), llm, debug, log)

	topics := summarizer.SummarizeClusters(ctx, clusters, valid)

	merged, mergeLog := analysis.MergeTopics(topics, analysis.KeywordOverlapStrategy{Threshold: cfg.File.MergeThreshold})
	if len(mergeLog) > 0 {
		log.Info().Int("before", len(topics)).Int("after", len(merged)).Msg("merged near-duplicate topics")
	}

	return writeOutputs(cfg, merged, mergeLog, log)
}

func clusterMessages(cfg Config, msgs []analysis.Message, vecs [][]float64, log zerolog.Logger) ([]analysis.Cluster, error) {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MsgID
	}

	switch cfg.Mode {
	case "density":
		strategy := analysis.NewDensityStrategy(cfg.File.Density)
		clusters, err := strategy.Cluster(vecs, ids)
		if err != nil {
			return nil, fmt.Errorf("density clustering: %w", err)
		}
		return clusters, nil
	default:
		threader := analysis.NewThreader(cfg.File.Threader, log)
		clusters, err := threader.Run(msgs, vecs)
		if err != nil {
			return nil, fmt.Errorf("threading: %w", err)
		}
		return clusters, nil
	}
}

func writeOutputs(cfg Config, topics []analysis.Topic, mergeLog []analysis.MergeLogEntry, log zerolog.Logger) error {
	topicsPath := filepath.Join(cfg.OutDir, "topics.json")
	if err := fileutils.WriteJSONFileAtomic(topicsPath, topics, cfg.Pretty); err != nil {
		return fmt.Errorf("write topics: %w", err)
	}

	schemaPath := filepath.Join(cfg.OutDir, "topics.schema.json")
	if err := fileutils.WriteJSONFileAtomic(schemaPath, provider.GenerateSchema[analysis.Topic](), true); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}

	if len(mergeLog) > 0 {
		if err := fileutils.WriteJSONFileAtomic(filepath.Join(cfg.OutDir, "merge_log.json"), mergeLog, true); err != nil {
			return fmt.Errorf("write merge log: %w", err)
		}
	}

	reportPath := filepath.Join(cfg.OutDir, "report.txt")
	if err := fileutils.WriteFileAtomicSameDir(reportPath, []byte(renderReport(cfg, topics)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	log.Info().Int("topics", len(topics)).Str("out", cfg.OutDir).Msg("analysis complete")
	return nil
}

func renderReport(cfg Config, topics []analysis.Topic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic report: %s (%s to %s)\n", cfg.ChatroomID, cfg.FromDate, cfg.ToDate)
	fmt.Fprintf(&b, "%d topics\n\n", len(topics))
	for i, t := range topics {
		fmt.Fprintf(&b, "%d. %s [%s] (confidence %.2f)\n", i+1, t.Title, t.Category, t.Confidence)
		if t.TimeRange != "" {
			fmt.Fprintf(&b, "   time: %s\n", t.TimeRange)
		}
		if len(t.Participants) > 0 {
			fmt.Fprintf(&b, "   participants: %s\n", strings.Join(t.Participants, ", "))
		}
		if len(t.Keywords) > 0 {
			fmt.Fprintf(&b, "   keywords: %s\n", strings.Join(t.Keywords, ", "))
		}
		fmt.Fprintf(&b, "   messages: %d\n", t.MessageCount)
		if t.Summary != "" {
			fmt.Fprintf(&b, "   %s\n", t.Summary)
		}
		if t.Notes != "" {
			fmt.Fprintf(&b, "   notes: %s\n", t.Notes)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
