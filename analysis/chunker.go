package analysis

// Chunker splits ordered message lists into summarizer-ready batches. Two
// policies exist: fixed message-count windows and greedy token-budget
// accumulation over formatted lines. Concatenating the produced batches, in
// order, always reproduces the input order exactly.
type Chunker struct {
	fmt *Formatter
}

// NewChunker returns a chunker that prices messages via fmt's summary
// rendering.
func NewChunker(fmt *Formatter) *Chunker {
	return &Chunker{fmt: fmt}
}

// ChunkByCount splits msgs into non-overlapping windows of size messages
// each; the final window may be short. size <= 0 yields a single batch.
func (c *Chunker) ChunkByCount(msgs []Message, size int) [][]Message {
	if len(msgs) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]Message{msgs}
	}
	batches := make([][]Message, 0, (len(msgs)+size-1)/size)
	for start := 0; start < len(msgs); start += size {
		end := start + size
		if end > len(msgs) {
			end = len(msgs)
		}
		batches = append(batches, msgs[start:end])
	}
	return batches
}

// ChunkByTokens greedily accumulates formatted lines into the current batch;
// when adding the next line would exceed maxTokens, the batch is closed and
// a new one starts with that line. A single message whose line alone exceeds
// the budget still forms its own one-message batch rather than being split.
func (c *Chunker) ChunkByTokens(msgs []Message, maxTokens int) [][]Message {
	if len(msgs) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return [][]Message{msgs}
	}

	var batches [][]Message
	var current []Message
	currentTokens := 0

	for _, m := range msgs {
		lineTokens := c.fmt.LineTokens(m)
		if len(current) > 0 && currentTokens+lineTokens > maxTokens {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, m)
		currentTokens += lineTokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// SelectForSummary bounds msgs to maxMessages by deterministic stride
// sampling (step = max(1, len/max)), preserving coverage across the whole
// time range instead of truncating the tail.
func SelectForSummary(msgs []Message, maxMessages int) []Message {
	if maxMessages <= 0 || len(msgs) <= maxMessages {
		return msgs
	}
	step := len(msgs) / maxMessages
	if step < 1 {
		step = 1
	}
	out := make([]Message, 0, maxMessages)
	for i := 0; i < len(msgs) && len(out) < maxMessages; i += step {
		out = append(out, msgs[i])
	}
	return out
}
