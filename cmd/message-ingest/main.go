// Command message-ingest receives chat webhook payloads and appends them to
// the JSONL message store, assigning message ids and per-chatroom sequence
// numbers. The analysis pipeline later reads the store by date range.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/chat-topics/analysis"
	"github.com/theimaginaryfoundation/chat-topics/store"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	msgStore, err := store.NewMessageStore(cfg.StoreDir)
	if err != nil {
		log.Error().Err(err).Msg("open message store")
		os.Exit(1)
	}

	ingest := &ingestServer{store: msgStore, log: log, seqs: make(map[string]int64)}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/webhook/{chatroom}", ingest.handleWebhook)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Addr).Str("store", cfg.StoreDir).Msg("message-ingest listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

// webhookPayload is the inbound message shape. MsgID and SeqID are optional;
// the server fills them in when absent.
type webhookPayload struct {
	MsgID      string                  `json:"msg_id"`
	SeqID      int64                   `json:"seq_id"`
	Sender     string                  `json:"sender"`
	Content    string                  `json:"content"`
	CreateTime time.Time               `json:"create_time"`
	Kind       analysis.MessageKind    `json:"kind"`
	Quoted     *analysis.QuotedMessage `json:"quoted_message"`
	OCRText    string                  `json:"ocr_text"`
	ShareTitle string                  `json:"share_title"`
}

type ingestServer struct {
	store *store.MessageStore
	log   zerolog.Logger

	mu   sync.Mutex
	seqs map[string]int64
}

func (s *ingestServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	chatroom := chi.URLParam(r, "chatroom")
	if chatroom == "" {
		http.Error(w, "missing chatroom", http.StatusBadRequest)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if payload.Sender == "" {
		http.Error(w, "missing sender", http.StatusBadRequest)
		return
	}

	msg := analysis.Message{
		MsgID:      payload.MsgID,
		SeqID:      payload.SeqID,
		Sender:     payload.Sender,
		Content:    payload.Content,
		CreateTime: payload.CreateTime,
		Kind:       payload.Kind,
		Quoted:     payload.Quoted,
		OCRText:    payload.OCRText,
		ShareTitle: payload.ShareTitle,
	}
	if msg.MsgID == "" {
		msg.MsgID = uuid.NewString()
	}
	if msg.CreateTime.IsZero() {
		msg.CreateTime = time.Now().UTC()
	}
	if msg.SeqID == 0 {
		seq, err := s.nextSeq(chatroom)
		if err != nil {
			s.log.Error().Str("chatroom", chatroom).Err(err).Msg("sequence lookup failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		msg.SeqID = seq
	}

	if err := s.store.Append(chatroom, msg); err != nil {
		s.log.Error().Str("chatroom", chatroom).Err(err).Msg("append failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.log.Debug().Str("chatroom", chatroom).Str("msg_id", msg.MsgID).Int64("seq", msg.SeqID).Msg("message stored")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"msg_id": msg.MsgID, "seq_id": msg.SeqID})
}

// nextSeq hands out monotonic per-chatroom sequence numbers, seeding the
// in-memory counter from the store on first use.
func (s *ingestServer) nextSeq(chatroom string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seqs[chatroom]; !ok {
		last, err := s.store.LastSeq(chatroom)
		if err != nil {
			return 0, err
		}
		s.seqs[chatroom] = last
	}
	s.seqs[chatroom]++
	return s.seqs[chatroom], nil
}
