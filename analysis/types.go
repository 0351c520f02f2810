// Package analysis turns one chatroom's ordered message stream into a small
// set of labeled topics: it embeds messages, groups them by semantic and
// temporal proximity, and summarizes each group through a token-budgeted
// map-reduce protocol against a text-completion provider.
package analysis

import (
	"strings"
	"time"
)

// MessageKind distinguishes how a message's content should be rendered.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindShare MessageKind = "share"
)

// QuotedMessage is an inline reference to an earlier message.
type QuotedMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content,omitempty"`
}

// Message is one chat message as handed over by the storage collaborator.
// The core treats it as read-only except for ThreadID, which the threader
// attaches during a run.
type Message struct {
	MsgID      string      `json:"msg_id"`
	SeqID      int64       `json:"seq_id"`
	Sender     string      `json:"sender"`
	Content    string      `json:"content"`
	CreateTime time.Time   `json:"create_time"`
	Kind       MessageKind `json:"kind,omitempty"`

	// Quoted is set when the message replies to an earlier one.
	Quoted *QuotedMessage `json:"quoted_message,omitempty"`

	// OCRText is attached by upstream image enrichment; used by the display
	// formatter in place of an image placeholder.
	OCRText string `json:"ocr_text,omitempty"`

	// ShareTitle is the title of an article-share message.
	ShareTitle string `json:"share_title,omitempty"`

	// Filtered marks messages upstream enrichment decided to drop from
	// display output.
	Filtered bool `json:"filtered,omitempty"`

	// ThreadID is derived by the threader; empty until assigned.
	ThreadID string `json:"thread_id,omitempty"`
}

// NoiseClusterID is the sentinel label for the unclustered/noise bucket.
const NoiseClusterID = -1

// Cluster is one partition cell produced by a clustering strategy. The union
// of all clusters' MessageIDs (noise included) is exactly the input id set.
type Cluster struct {
	ID         int       `json:"cluster_id"`
	MessageIDs []string  `json:"message_ids"`
	Centroid   []float64 `json:"-"`
}

// IsNoise reports whether the cluster is the unclustered bucket.
func (c Cluster) IsNoise() bool { return c.ID == NoiseClusterID }

// Topic is one labeled, attributed summary of a message subset.
type Topic struct {
	Title        string   `json:"title"`
	Category     string   `json:"category"`
	Summary      string   `json:"summary"`
	TimeRange    string   `json:"time_range,omitempty"`
	Participants []string `json:"participants,omitempty"`
	MessageCount int      `json:"message_count"`
	Keywords     []string `json:"keywords,omitempty"`
	MessageIDs   []string `json:"message_ids,omitempty"`
	Confidence   float64  `json:"confidence"`
	Notes        string   `json:"notes,omitempty"`
}

// CategoryOther is the fallback for unknown or unparsed categories.
const CategoryOther = "other"

// DefaultCategories is the closed category set topics are labeled with.
var DefaultCategories = []string{"tech", "work", "life", "news", "qa", "event", CategoryOther}

// NormalizeCategory maps a raw model-emitted category onto the closed set,
// falling back to CategoryOther.
func NormalizeCategory(raw string, allowed []string) string {
	if len(allowed) == 0 {
		allowed = DefaultCategories
	}
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range allowed {
		if s == c {
			return c
		}
	}
	return CategoryOther
}

// ClampConfidence forces a confidence score into [0, 1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NormalizeSender canonicalizes a sender name for participant-set membership
// and mention matching.
func NormalizeSender(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Participants returns the deduplicated, sorted sender set of msgs.
func Participants(msgs []Message) []string {
	return dedupeSortStrings(senderNames(msgs))
}

func senderNames(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sender)
	}
	return out
}
