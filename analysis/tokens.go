package analysis

// Tokenizer counts language-model tokens for a text. Implementations may be
// model-specific; the estimator falls back to a character heuristic when no
// tokenizer is available or a count fails.
type Tokenizer interface {
	CountTokens(text string) (int, error)
}

// heuristicCharsPerToken approximates one token per four characters, which
// is close enough for chunk-budget decisions on mixed chat text.
const heuristicCharsPerToken = 4

// TokenEstimator estimates token counts for chunking decisions. It is an
// explicit service passed through the call chain (formatter, chunker,
// summarizer) rather than a process-wide singleton.
type TokenEstimator struct {
	tokenizer Tokenizer
}

// NewTokenEstimator returns an estimator backed by tokenizer. A nil
// tokenizer is allowed; the estimator then always uses the heuristic.
func NewTokenEstimator(tokenizer Tokenizer) *TokenEstimator {
	return &TokenEstimator{tokenizer: tokenizer}
}

// Estimate returns a non-negative token estimate for text. It never fails:
// tokenizer errors degrade to the len/4 heuristic. Empty text estimates 0.
func (e *TokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e != nil && e.tokenizer != nil {
		if n, err := e.tokenizer.CountTokens(text); err == nil && n >= 0 {
			return n
		}
	}
	return len(text) / heuristicCharsPerToken
}

// EstimateAll sums Estimate over texts.
func (e *TokenEstimator) EstimateAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += e.Estimate(t)
	}
	return total
}
