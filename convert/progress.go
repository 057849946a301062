package convert

import (
	"sync"
	"time"

	"github.com/BaSui01/meshflow/internal/channel"
)

// Stage identifies a step of the conversion pipeline.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageFetching  Stage = "fetching"
	StageDecoding  Stage = "decoding"
	StageExporting Stage = "exporting"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// Progress is a pipeline event published while a conversion job runs.
type Progress struct {
	JobID     string    `json:"job_id"`
	SourceURL string    `json:"source_url"`
	Format    string    `json:"output_format"`
	Stage     Stage     `json:"stage"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier fans conversion progress out to subscribers. Each subscriber gets
// its own buffered channel; events for slow subscribers are dropped rather
// than stalling the pipeline.
type Notifier struct {
	mu   sync.RWMutex
	subs map[int]*channel.ElasticChannel[Progress]
	next int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[int]*channel.ElasticChannel[Progress]),
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it; the channel is not closed so late reads stay safe.
func (n *Notifier) Subscribe() (*channel.ElasticChannel[Progress], func()) {
	sub := channel.NewElasticChannel[Progress](channel.DefaultConfig())

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = sub
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
	return sub, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (n *Notifier) Publish(event Progress) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subs {
		sub.TrySend(event)
	}
}

// Subscribers returns the current subscriber count.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
