// Package store persists chat messages as per-day JSONL files and message
// embeddings in a SQLite-backed vector index. The analysis core never
// touches storage directly; it is handed ordered message lists.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/theimaginaryfoundation/chat-topics/analysis"
)

// MessageStore is an append-only JSONL store laid out as
// <dir>/<chatroom>/<YYYY-MM-DD>.jsonl, one message per line.
type MessageStore struct {
	dir string
}

// NewMessageStore roots a store at dir, creating it if missing.
func NewMessageStore(dir string) (*MessageStore, error) {
	if dir == "" {
		return nil, errors.New("NewMessageStore: dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewMessageStore: mkdir: %w", err)
	}
	return &MessageStore{dir: dir}, nil
}

// Append writes one message to its chatroom/day file.
func (s *MessageStore) Append(chatroomID string, m analysis.Message) error {
	if chatroomID == "" {
		return errors.New("Append: chatroomID is empty")
	}
	day := m.CreateTime
	if day.IsZero() {
		day = time.Now()
	}
	path := s.dayPath(chatroomID, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("Append: mkdir: %w", err)
	}

	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("Append: marshal: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("Append: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("Append: write: %w", err)
	}
	return nil
}

// QueryRange returns the chatroom's messages with from <= create_time < to,
// ordered by seq id. Missing day files are skipped silently.
func (s *MessageStore) QueryRange(chatroomID string, from, to time.Time) ([]analysis.Message, error) {
	if chatroomID == "" {
		return nil, errors.New("QueryRange: chatroomID is empty")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("QueryRange: to %s before from %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	var out []analysis.Message
	for day := from.Truncate(24 * time.Hour); !day.After(to); day = day.AddDate(0, 0, 1) {
		msgs, err := s.readDay(s.dayPath(chatroomID, day))
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.CreateTime.IsZero() || (!m.CreateTime.Before(from) && m.CreateTime.Before(to)) {
				out = append(out, m)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].SeqID < out[j].SeqID })
	return out, nil
}

// LastSeq returns the highest seq id stored for the chatroom, or 0 when the
// chatroom has no messages yet.
func (s *MessageStore) LastSeq(chatroomID string) (int64, error) {
	roomDir := filepath.Join(s.dir, chatroomID)
	entries, err := os.ReadDir(roomDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("LastSeq: read dir: %w", err)
	}

	var last int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		msgs, err := s.readDay(filepath.Join(roomDir, e.Name()))
		if err != nil {
			return 0, err
		}
		for _, m := range msgs {
			if m.SeqID > last {
				last = m.SeqID
			}
		}
	}
	return last, nil
}

func (s *MessageStore) dayPath(chatroomID string, day time.Time) string {
	return filepath.Join(s.dir, chatroomID, day.Format("2006-01-02")+".jsonl")
}

// readDay decodes one JSONL file. Corrupt lines are skipped rather than
// failing the whole query; a partial final line can exist after a crash.
func (s *MessageStore) readDay(path string) ([]analysis.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("readDay: open %s: %w", path, err)
	}
	defer f.Close()

	var out []analysis.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m analysis.Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("readDay: scan %s: %w", path, err)
	}
	return out, nil
}
