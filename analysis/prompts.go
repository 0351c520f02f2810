package analysis

import (
	"fmt"
	"strings"
)

const chunkSummarySystemPrompt = `You are a chat analysis assistant.

You will be given one chunk of chat messages from a single group chatroom,
one message per line, formatted as "<time> <sender>: <content>".

Goal: describe what this chunk of the conversation is about, so that a later
pass can merge several chunk summaries into one topic record.

Rules:
- Stay strictly grounded in the given messages; never invent events.
- Keep the summary to 2-4 sentences.
- Notes capture loose ends, decisions, or follow-ups worth keeping; leave
  notes empty when there is nothing worth noting.

Output exactly one block in this form and nothing else:

RESULT_START
TOPIC
summary: <2-4 sentence summary of the chunk>
notes: <optional short notes>
RESULT_END`

const mergeTopicSystemPrompt = `You are a chat analysis assistant.

You will be given numbered partial summaries, each covering one chunk of the
same conversation cluster, plus optional notes. Merge them into ONE topic
record.

Rules:
- The title is short (at most 10 words) and concrete.
- category must be exactly one of: %s.
- keywords are 3-8 short phrases, most salient first.
- confidence is your 0.0-1.0 estimate that the merged record faithfully
  represents one coherent topic.
- Stay grounded in the partial summaries; do not invent content.

Output exactly one block in this form and nothing else:

RESULT_START
TOPIC
title: <short title>
category: <one allowed category>
summary: <3-6 sentence merged summary>
keywords: <comma-separated keywords>
confidence: <0.0-1.0>
notes: <optional short notes>
RESULT_END`

const noiseThemeSystemPrompt = `You are a chat analysis assistant.

You will be given numbered partial summaries of scattered chat messages that
did not fit any coherent discussion cluster. Look for a common theme that
loosely connects them.

Rules:
- If the messages share no real theme, title the record as miscellaneous
  chatter and say so in the summary.
- category must be exactly one of: %s.
- Keep confidence modest; these are leftovers, not a dense discussion.

Output exactly one block in this form and nothing else:

RESULT_START
TOPIC
title: <short title>
category: <one allowed category>
summary: <2-4 sentence description of the common theme>
keywords: <comma-separated keywords>
confidence: <0.0-1.0>
notes: <optional short notes>
RESULT_END`

// buildChunkPrompt renders one chunk of messages for the map phase.
func buildChunkPrompt(f *Formatter, chunk []Message, chunkNum, chunkTotal int) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Chunk %d of %d:\n\n", chunkNum, chunkTotal)
	for _, m := range chunk {
		line := f.FormatForSummary(m)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return SystemUserPrompt(chunkSummarySystemPrompt, b.String())
}

// buildMergePrompt renders the numbered chunk summaries for the reduce
// phase. noise selects the common-theme variant used for the unclustered
// bucket.
func buildMergePrompt(summaries, notes []string, categories []string, noise bool) Prompt {
	system := mergeTopicSystemPrompt
	if noise {
		system = noiseThemeSystemPrompt
	}
	system = fmt.Sprintf(system, strings.Join(categories, ", "))

	var b strings.Builder
	b.WriteString("Partial summaries:\n\n")
	for i, s := range summaries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	if len(notes) > 0 {
		b.WriteString("\nNotes:\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return SystemUserPrompt(system, b.String())
}
