package analysis

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/chat-topics/analysis/fileutils"
)

// DebugWriter dumps per-stage artifacts under a caller-chosen directory:
// one plain-text "key: value" file per cluster chunk, per cluster merge, and
// per noise bucket. The files are for humans; nothing parses them back.
type DebugWriter struct {
	dir string
	log zerolog.Logger
}

// NewDebugWriter returns a writer rooted at dir, or nil when dir is empty
// (a nil writer is safe to call and does nothing).
func NewDebugWriter(dir string, log zerolog.Logger) *DebugWriter {
	if dir == "" {
		return nil
	}
	return &DebugWriter{dir: dir, log: log}
}

// WriteChunk records one map-phase call.
func (w *DebugWriter) WriteChunk(clusterID, chunkNum int, lines []string, summary, notes string) {
	if w == nil {
		return
	}
	w.dump(fmt.Sprintf("cluster_%s_chunk_%d.txt", clusterLabel(clusterID), chunkNum), []kv{
		{"cluster_id", fmt.Sprintf("%d", clusterID)},
		{"chunk", fmt.Sprintf("%d", chunkNum)},
		{"messages", fmt.Sprintf("%d", len(lines))},
		{"input", strings.Join(lines, "\n")},
		{"summary", summary},
		{"notes", notes},
	})
}

// WriteMerge records the reduce-phase result for one cluster.
func (w *DebugWriter) WriteMerge(clusterID int, summaries []string, topic Topic) {
	if w == nil {
		return
	}
	name := fmt.Sprintf("cluster_%s_merge.txt", clusterLabel(clusterID))
	if clusterID == NoiseClusterID {
		name = "noise_bucket.txt"
	}
	w.dump(name, []kv{
		{"cluster_id", fmt.Sprintf("%d", clusterID)},
		{"chunk_summaries", strings.Join(summaries, "\n")},
		{"title", topic.Title},
		{"category", topic.Category},
		{"summary", topic.Summary},
		{"keywords", strings.Join(topic.Keywords, ", ")},
		{"confidence", fmt.Sprintf("%.2f", topic.Confidence)},
		{"notes", topic.Notes},
	})
}

type kv struct {
	key   string
	value string
}

func (w *DebugWriter) dump(name string, pairs []kv) {
	var b strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&b, "%s: %s\n", p.key, p.value)
	}
	path := filepath.Join(w.dir, name)
	if err := fileutils.WriteFileAtomicSameDir(path, []byte(b.String()), 0o644); err != nil {
		w.log.Warn().Str("path", path).Err(err).Msg("debug artifact write failed")
	}
}

func clusterLabel(id int) string {
	if id == NoiseClusterID {
		return "noise"
	}
	return fmt.Sprintf("%d", id)
}
