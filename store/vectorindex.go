package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/theimaginaryfoundation/chat-topics/analysis"
)

// SQLiteVectorIndex persists message embeddings for later similarity
// lookup. Vectors are stored as JSON-encoded BLOBs and searched brute
// force; chatroom-sized corpora stay well within that approach.
// A single handle assumes single-writer, single-reader access per run.
type SQLiteVectorIndex struct {
	mu sync.RWMutex
	db *sql.DB
}

// SearchResult is one similarity hit.
type SearchResult struct {
	ChatroomID string
	MsgID      string
	Score      float64
}

// OpenVectorIndex opens (or creates) the index database at path.
func OpenVectorIndex(path string) (*SQLiteVectorIndex, error) {
	if path == "" {
		return nil, errors.New("OpenVectorIndex: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("OpenVectorIndex: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("OpenVectorIndex: open: %w", err)
	}

	idx := &SQLiteVectorIndex{db: db}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("OpenVectorIndex: init schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteVectorIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		chatroom_id TEXT NOT NULL,
		msg_id      TEXT NOT NULL,
		sender      TEXT,
		create_time DATETIME,
		vector      BLOB NOT NULL,
		PRIMARY KEY (chatroom_id, msg_id)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_chatroom ON embeddings(chatroom_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLiteVectorIndex) Close() error { return s.db.Close() }

// Upsert writes one vector per message; msgs and vecs correspond by index.
// Implements analysis.VectorIndex.
func (s *SQLiteVectorIndex) Upsert(ctx context.Context, chatroomID string, msgs []analysis.Message, vecs [][]float64) error {
	if len(msgs) != len(vecs) {
		return fmt.Errorf("Upsert: %d messages but %d vectors", len(msgs), len(vecs))
	}
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Upsert: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embeddings (chatroom_id, msg_id, sender, create_time, vector)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("Upsert: prepare: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		blob, err := json.Marshal(vecs[i])
		if err != nil {
			return fmt.Errorf("Upsert: encode vector: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, chatroomID, m.MsgID, m.Sender, m.CreateTime, blob); err != nil {
			return fmt.Errorf("Upsert: insert %s: %w", m.MsgID, err)
		}
	}
	return tx.Commit()
}

// SearchSimilar returns the topK stored vectors most cosine-similar to
// queryVec. An empty chatroomID searches every chatroom.
func (s *SQLiteVectorIndex) SearchSimilar(ctx context.Context, queryVec []float64, chatroomID string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT chatroom_id, msg_id, vector FROM embeddings`
	var args []any
	if chatroomID != "" {
		query += ` WHERE chatroom_id = ?`
		args = append(args, chatroomID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SearchSimilar: query: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var room, msgID string
		var blob []byte
		if err := rows.Scan(&room, &msgID, &blob); err != nil {
			return nil, fmt.Errorf("SearchSimilar: scan: %w", err)
		}
		var vec []float64
		if err := json.Unmarshal(blob, &vec); err != nil {
			continue
		}
		results = append(results, SearchResult{
			ChatroomID: room,
			MsgID:      msgID,
			Score:      cosine64(queryVec, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchSimilar: rows: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// GetEmbeddings returns stored vectors for ids, in request order. Ids with
// no stored vector are silently skipped.
func (s *SQLiteVectorIndex) GetEmbeddings(ctx context.Context, chatroomID string, ids []string) ([][]float64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, chatroomID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT msg_id, vector FROM embeddings WHERE chatroom_id = ? AND msg_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("GetEmbeddings: query: %w", err)
	}
	defer rows.Close()

	byID := make(map[string][]float64, len(ids))
	for rows.Next() {
		var msgID string
		var blob []byte
		if err := rows.Scan(&msgID, &blob); err != nil {
			return nil, fmt.Errorf("GetEmbeddings: scan: %w", err)
		}
		var vec []float64
		if err := json.Unmarshal(blob, &vec); err != nil {
			continue
		}
		byID[msgID] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetEmbeddings: rows: %w", err)
	}

	out := make([][]float64, 0, len(ids))
	for _, id := range ids {
		if vec, ok := byID[id]; ok {
			out = append(out, vec)
		}
	}
	return out, nil
}

// cosine64 is the similarity used for brute-force search.
func cosine64(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
