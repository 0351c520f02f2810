package analysis

import (
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// ThreaderConfig tunes the online threading pass.
type ThreaderConfig struct {
	// TimeWindowMinutes bounds how long a thread stays active after its last
	// message. Zero or negative disables the window.
	TimeWindowMinutes int `yaml:"time_window_minutes"`

	// SimilarityThreshold is the minimum (possibly boosted) cosine score for
	// joining an existing thread.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// ReplyBoost is added to a thread's score when the message quotes or
	// @mentions one of that thread's participants.
	ReplyBoost float64 `yaml:"reply_boost"`
}

// DefaultThreaderConfig mirrors the tuning that works well on real
// chatrooms.
func DefaultThreaderConfig() ThreaderConfig {
	return ThreaderConfig{
		TimeWindowMinutes:   60,
		SimilarityThreshold: 0.8,
		ReplyBoost:          0.1,
	}
}

// threadState is one thread's accumulator during a run: an un-normalized
// running sum of member vectors (the centroid is the normalized sum, read
// on demand), the activity timestamp, and the participant set.
type threadState struct {
	id           string
	sum          []float64
	count        int
	lastTime     time.Time
	lastSender   string
	participants map[string]struct{}
	messages     []Message
}

func (t *threadState) centroid() []float64 {
	return normalize(t.sum)
}

func (t *threadState) add(m Message, vec []float64) {
	if t.sum == nil {
		t.sum = make([]float64, len(vec))
	}
	for i := range t.sum {
		if i < len(vec) {
			t.sum[i] += vec[i]
		}
	}
	t.count++
	if !m.CreateTime.IsZero() {
		t.lastTime = m.CreateTime
	}
	t.lastSender = m.Sender
	if key := NormalizeSender(m.Sender); key != "" {
		t.participants[key] = struct{}{}
	}
	t.messages = append(t.messages, m)
}

// Threader groups an ordered message stream into threads in a single pass:
// each message joins the active thread whose centroid it is most similar to,
// or starts a new thread when nothing scores above the threshold. Threads
// older than the time window go dormant and are never reactivated, but every
// thread survives to the output.
type Threader struct {
	cfg ThreaderConfig
	log zerolog.Logger

	threads []*threadState
}

// NewThreader returns a threader for one run. State is owned by the run and
// must not be shared across invocations.
func NewThreader(cfg ThreaderConfig, log zerolog.Logger) *Threader {
	return &Threader{cfg: cfg, log: log}
}

// mentionRe matches @mentions inside message content.
var mentionRe = regexp.MustCompile(`@([^\s@:,，。]+)`)

// Run consumes msgs (already in ascending seq order) with their embeddings
// and returns one cluster per thread, in thread creation order. It attaches
// the chosen thread id to each returned cluster's source messages.
func (t *Threader) Run(msgs []Message, vecs [][]float64) ([]Cluster, error) {
	if len(msgs) != len(vecs) {
		return nil, fmt.Errorf("Threader.Run: %d messages but %d embeddings", len(msgs), len(vecs))
	}

	for i := range msgs {
		t.place(msgs[i], normalize(vecs[i]))
	}

	clusters := make([]Cluster, 0, len(t.threads))
	for i, th := range t.threads {
		ids := make([]string, 0, len(th.messages))
		for j := range th.messages {
			th.messages[j].ThreadID = th.id
			ids = append(ids, th.messages[j].MsgID)
		}
		clusters = append(clusters, Cluster{
			ID:         i,
			MessageIDs: ids,
			Centroid:   th.centroid(),
		})
	}
	t.log.Debug().Int("messages", len(msgs)).Int("threads", len(clusters)).Msg("threading done")
	return clusters, nil
}

// Messages returns the member messages of the i-th output cluster.
func (t *Threader) Messages(i int) []Message {
	if i < 0 || i >= len(t.threads) {
		return nil
	}
	return t.threads[i].messages
}

func (t *Threader) place(m Message, vec []float64) {
	targets := t.replyTargets(m)

	var best *threadState
	bestScore := -1.0
	for _, th := range t.threads {
		if !t.active(th, m) {
			continue
		}
		score := dot(vec, th.centroid())
		if len(targets) > 0 && t.cfg.ReplyBoost > 0 && hasAnyParticipant(th, targets) {
			score += t.cfg.ReplyBoost
			if score > 1.0 {
				score = 1.0
			}
		}
		if score > bestScore {
			best = th
			bestScore = score
		}
	}

	if best == nil || bestScore < t.cfg.SimilarityThreshold {
		th := &threadState{
			id:           fmt.Sprintf("thread-%d", len(t.threads)+1),
			participants: make(map[string]struct{}),
		}
		th.add(m, vec)
		t.threads = append(t.threads, th)
		return
	}
	best.add(m, vec)
}

// active reports whether th may still accept m. With the window disabled or
// the message timestamp missing, every thread stays eligible.
func (t *Threader) active(th *threadState, m Message) bool {
	if t.cfg.TimeWindowMinutes <= 0 || m.CreateTime.IsZero() || th.lastTime.IsZero() {
		return true
	}
	window := time.Duration(t.cfg.TimeWindowMinutes) * time.Minute
	return m.CreateTime.Sub(th.lastTime) <= window
}

// replyTargets collects the normalized names m explicitly references: the
// quoted message's sender plus any @mentions in the content.
func (t *Threader) replyTargets(m Message) []string {
	var targets []string
	if m.Quoted != nil {
		if key := NormalizeSender(m.Quoted.Sender); key != "" {
			targets = append(targets, key)
		}
	}
	for _, match := range mentionRe.FindAllStringSubmatch(m.Content, -1) {
		if key := NormalizeSender(match[1]); key != "" {
			targets = append(targets, key)
		}
	}
	return targets
}

func hasAnyParticipant(th *threadState, targets []string) bool {
	for _, key := range targets {
		if _, ok := th.participants[key]; ok {
			return true
		}
	}
	return false
}
