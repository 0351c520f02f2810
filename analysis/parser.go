package analysis

import (
	"regexp"
	"strconv"
	"strings"
)

// Protocol markers emitted by the completion service around topic blocks.
const (
	ResultStartMarker = "RESULT_START"
	ResultEndMarker   = "RESULT_END"
	TopicMarker       = "TOPIC"
)

// Parse warnings, surfaced instead of errors: malformed model output is
// downgraded to best-effort defaults, never raised.
const (
	WarnNoTopicBlocks  = "no_topic_blocks_found"
	WarnNoTopicsParsed = "no_topics_parsed"
)

// ParsedTopic is one topic block decoded from the mini-protocol.
type ParsedTopic struct {
	Title          string
	Category       string
	Summary        string
	Notes          string
	Keywords       []string
	Participants   []string
	MessageIDs     []string
	MessageIndices []int
	MessageCount   int
	Confidence     float64
}

// ParseResult is the parser output: zero or more topics plus warnings.
type ParseResult struct {
	Topics   []ParsedTopic
	Warnings []string
}

// listKeys are the fields that accept inline comma-separated values or
// "- " continuation lines, one item per line.
var listKeys = map[string]bool{
	"keywords":        true,
	"participants":    true,
	"message_ids":     true,
	"message_indices": true,
}

// fieldValue is the tagged variant a parsed field goes through before
// finalization: a scalar string or a list of items.
type fieldValue struct {
	isList bool
	scalar string
	list   []string
}

// keyLineRe matches "key: value" lines. Keys are short identifier-ish
// tokens so that prose containing colons does not get misread as fields.
var keyLineRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 _-]{0,31}):\s*(.*)$`)

// ParseTopicsResponse decodes the delimiter + key-value protocol emitted by
// the completion service. The optional RESULT_START/RESULT_END envelope is
// stripped, the content is split into TOPIC blocks, and each block's fields
// are collected with per-field defaulting on close.
func ParseTopicsResponse(text string, allowedCategories []string) ParseResult {
	body := stripEnvelope(text)

	var result ParseResult
	var current map[string]*fieldValue
	var order []string
	currentKey := ""
	sawBlock := false

	flush := func() {
		if current == nil {
			return
		}
		if t, ok := finalizeBlock(current, order, allowedCategories); ok {
			result.Topics = append(result.Topics, t)
		}
		current, order, currentKey = nil, nil, ""
	}

	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimRight(rawLine, " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if trimmed == TopicMarker || strings.HasPrefix(trimmed, TopicMarker+" ") || strings.HasPrefix(trimmed, TopicMarker+":") {
			flush()
			current = make(map[string]*fieldValue)
			sawBlock = true
			continue
		}
		if current == nil {
			// Preamble outside any block is ignored.
			continue
		}

		if item, ok := strings.CutPrefix(trimmed, "- "); ok {
			appendContinuation(current, currentKey, strings.TrimSpace(item))
			continue
		}

		if m := keyLineRe.FindStringSubmatch(trimmed); m != nil {
			key := normalizeKey(m[1])
			value := strings.TrimSpace(m[2])
			fv := &fieldValue{}
			if listKeys[key] {
				fv.isList = true
				fv.list = splitInlineList(value)
			} else {
				fv.scalar = value
			}
			if _, exists := current[key]; !exists {
				order = append(order, key)
			}
			current[key] = fv
			currentKey = key
			continue
		}

		// Unrecognized continuation: extend the current field.
		appendContinuation(current, currentKey, trimmed)
	}
	flush()

	if !sawBlock {
		result.Warnings = append(result.Warnings, WarnNoTopicBlocks)
		return result
	}
	if len(result.Topics) == 0 {
		result.Warnings = append(result.Warnings, WarnNoTopicsParsed)
	}
	return result
}

func stripEnvelope(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, ResultStartMarker); i >= 0 {
		s = s[i+len(ResultStartMarker):]
	}
	if i := strings.LastIndex(s, ResultEndMarker); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func normalizeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

func splitInlineList(value string) []string {
	if value == "" {
		return nil
	}
	value = strings.ReplaceAll(value, "，", ",")
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendContinuation(block map[string]*fieldValue, currentKey, item string) {
	if currentKey == "" || item == "" {
		return
	}
	fv := block[currentKey]
	if fv == nil {
		return
	}
	if fv.isList {
		fv.list = append(fv.list, item)
		return
	}
	if fv.scalar == "" {
		fv.scalar = item
		return
	}
	fv.scalar += " " + item
}

// finalizeBlock applies the per-field defaulting rules and reports whether
// the block carried any recognized content at all; a bare TOPIC marker with
// nothing under it does not survive.
func finalizeBlock(block map[string]*fieldValue, order []string, allowedCategories []string) (ParsedTopic, bool) {
	if len(order) == 0 {
		return ParsedTopic{}, false
	}

	t := ParsedTopic{
		Title:      "untitled topic",
		Category:   CategoryOther,
		Confidence: 1.0,
	}

	if fv := block["title"]; fv != nil && strings.TrimSpace(fv.scalar) != "" {
		t.Title = strings.TrimSpace(fv.scalar)
	}
	if fv := block["category"]; fv != nil {
		t.Category = NormalizeCategory(fv.scalar, allowedCategories)
	}
	if fv := block["summary"]; fv != nil {
		t.Summary = strings.TrimSpace(fv.scalar)
	}
	if fv := block["notes"]; fv != nil {
		t.Notes = strings.TrimSpace(fv.scalar)
	}
	if fv := block["keywords"]; fv != nil {
		t.Keywords = dedupeStrings(fv.list)
	}
	if fv := block["participants"]; fv != nil {
		t.Participants = dedupeStrings(fv.list)
	}
	if fv := block["message_ids"]; fv != nil {
		t.MessageIDs = dedupeStrings(fv.list)
	}
	if fv := block["message_indices"]; fv != nil {
		t.MessageIndices = expandIndices(fv.list)
	}

	defaultCount := len(t.MessageIDs)
	if defaultCount == 0 {
		defaultCount = len(t.MessageIndices)
	}
	t.MessageCount = defaultCount
	if fv := block["message_count"]; fv != nil {
		t.MessageCount = safeInt(fv.scalar, defaultCount)
	}
	if fv := block["confidence"]; fv != nil {
		t.Confidence = ClampConfidence(safeFloat(fv.scalar, 1.0))
	}
	return t, true
}

// expandIndices parses list items as integers, expanding "a-b" ranges.
// Unparseable items are skipped.
func expandIndices(items []string) []int {
	var out []int
	seen := make(map[int]struct{})
	add := func(n int) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(item, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA == nil && errB == nil && a <= b {
				for n := a; n <= b; n++ {
					add(n)
				}
				continue
			}
		}
		if n, err := strconv.Atoi(item); err == nil {
			add(n)
		}
	}
	return out
}

func safeInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func safeFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallback
	}
	return f
}
