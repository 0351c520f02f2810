package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"
)

// EmbeddingProvider is the embedding-service boundary: equal-length float
// vectors for a list of UTF-8 strings, or an error. A "maximum batch size"
// violation carries the numeric limit inside the error text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimension() int
}

// VectorIndex is the optional persistence sink for message embeddings.
type VectorIndex interface {
	Upsert(ctx context.Context, chatroomID string, msgs []Message, vecs [][]float64) error
}

const defaultEmbedBatchSize = 64

// EmbeddingPipeline batches texts through an embedding provider. When the
// provider rejects a batch as too large, the pipeline permanently lowers its
// effective batch size to the advertised limit and re-sends the oversized
// batch split at the new size.
type EmbeddingPipeline struct {
	provider EmbeddingProvider
	index    VectorIndex
	log      zerolog.Logger

	batchSize int
}

// NewEmbeddingPipeline returns a pipeline over provider. index may be nil;
// Persist is then a no-op.
func NewEmbeddingPipeline(provider EmbeddingProvider, index VectorIndex, batchSize int, log zerolog.Logger) *EmbeddingPipeline {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &EmbeddingPipeline{
		provider:  provider,
		index:     index,
		log:       log,
		batchSize: batchSize,
	}
}

// Dimension reports the provider's vector dimension.
func (p *EmbeddingPipeline) Dimension() int { return p.provider.Dimension() }

// EffectiveBatchSize reports the current (possibly shrunk) batch size.
func (p *EmbeddingPipeline) EffectiveBatchSize() int { return p.batchSize }

// EmbedDocuments embeds texts in provider batches, preserving input order.
func (p *EmbeddingPipeline) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.provider.Embed(ctx, texts[start:end])
		if err != nil {
			limit, ok := batchLimitFromError(err)
			if ok && limit > 0 && limit < p.batchSize {
				p.log.Warn().Int("old_batch_size", p.batchSize).Int("new_batch_size", limit).
					Msg("embedding provider rejected batch size, shrinking")
				p.batchSize = limit
				continue // re-send the same range at the new size
			}
			return nil, fmt.Errorf("EmbedDocuments: embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("EmbedDocuments: provider returned %d vectors for %d texts", len(vecs), end-start)
		}
		out = append(out, vecs...)
		start = end
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (p *EmbeddingPipeline) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := p.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("EmbedQuery: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("EmbedQuery: provider returned %d vectors, want 1", len(vecs))
	}
	return vecs[0], nil
}

// Persist writes message embeddings to the vector index for later similarity
// lookup. Index failures are logged and swallowed; persistence is best
// effort and never fails the pipeline.
func (p *EmbeddingPipeline) Persist(ctx context.Context, chatroomID string, msgs []Message, vecs [][]float64) {
	if p.index == nil {
		return
	}
	if err := p.index.Upsert(ctx, chatroomID, msgs, vecs); err != nil {
		p.log.Warn().Str("chatroom", chatroomID).Err(err).Msg("vector index persist failed")
	}
}

// batchSizeRe pulls the advertised limit out of provider errors like
// "maximum allowed batch size is 16" or "batch size 64 exceeds limit 32".
var batchSizeRe = regexp.MustCompile(`(?i)(?:batch size|limit)\D*(\d+)`)

func batchLimitFromError(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	matches := batchSizeRe.FindAllStringSubmatch(err.Error(), -1)
	if len(matches) == 0 {
		return 0, false
	}
	// The last number mentioned is the limit in the common phrasings.
	n, convErr := strconv.Atoi(matches[len(matches)-1][1])
	if convErr != nil {
		return 0, false
	}
	return n, true
}
