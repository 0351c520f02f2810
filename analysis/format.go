package analysis

import (
	"fmt"
	"strings"
)

const (
	defaultMaxContentLen   = 200
	defaultQuotePreviewLen = 40

	// imagePlaceholder is what upstream ingestion stores for image messages
	// that carry no OCR text.
	imagePlaceholder = "[image]"
)

// Formatter renders messages as single display/embedding lines. One message
// always becomes one line; downstream chunkers depend on that.
type Formatter struct {
	est *TokenEstimator

	// MaxContentLen bounds rendered content in runes; longer content is
	// truncated with an ellipsis. Zero means defaultMaxContentLen.
	MaxContentLen int

	// QuotePreviewLen bounds the inline quoted-message preview in runes.
	QuotePreviewLen int
}

// NewFormatter returns a formatter using est for token accounting.
func NewFormatter(est *TokenEstimator) *Formatter {
	return &Formatter{
		est:             est,
		MaxContentLen:   defaultMaxContentLen,
		QuotePreviewLen: defaultQuotePreviewLen,
	}
}

// FormatForDisplay renders m as "<time> <sender>: <content>" with image,
// quote, and article-share substitutions applied. Messages flagged as
// filtered render as the empty string; callers must skip those.
func (f *Formatter) FormatForDisplay(m Message) string {
	if m.Filtered {
		return ""
	}
	content := f.displayContent(m)
	return f.line(m, content)
}

// FormatForSummary renders m as "<time> <sender>: <content>" with no
// enrichment substitutions, for use in summarization prompts.
func (f *Formatter) FormatForSummary(m Message) string {
	return f.line(m, m.Content)
}

// LineTokens estimates the token cost of m's summary rendering.
func (f *Formatter) LineTokens(m Message) int {
	return f.est.Estimate(f.FormatForSummary(m))
}

func (f *Formatter) line(m Message, content string) string {
	content = flattenNewlines(content)
	content = truncateRunes(content, f.maxContentLen())
	stamp := ""
	if !m.CreateTime.IsZero() {
		stamp = m.CreateTime.Format("15:04")
	}
	if stamp == "" {
		return fmt.Sprintf("%s: %s", m.Sender, content)
	}
	return fmt.Sprintf("%s %s: %s", stamp, m.Sender, content)
}

func (f *Formatter) displayContent(m Message) string {
	content := m.Content
	switch m.Kind {
	case KindImage:
		if ocr := strings.TrimSpace(m.OCRText); ocr != "" {
			content = ocr
		} else if strings.TrimSpace(content) == "" {
			content = imagePlaceholder
		}
	case KindShare:
		title := strings.TrimSpace(m.ShareTitle)
		if title == "" {
			title = strings.TrimSpace(content)
		}
		content = "[share] " + title
	}
	if m.Quoted != nil {
		preview := truncateRunes(flattenNewlines(m.Quoted.Content), f.quotePreviewLen())
		content = fmt.Sprintf("[re %s: %s] %s", m.Quoted.Sender, preview, content)
	}
	return content
}

func (f *Formatter) maxContentLen() int {
	if f.MaxContentLen > 0 {
		return f.MaxContentLen
	}
	return defaultMaxContentLen
}

func (f *Formatter) quotePreviewLen() int {
	if f.QuotePreviewLen > 0 {
		return f.QuotePreviewLen
	}
	return defaultQuotePreviewLen
}

// flattenNewlines collapses any line breaks inside content to single spaces
// so that one message stays one line.
func flattenNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// truncateRunes bounds s to max runes, appending an ellipsis when cut.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
