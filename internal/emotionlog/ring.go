// Package emotionlog keeps a bounded FIFO of recently observed emotions.
package emotionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/echosoul/backend/internal/model/emotion"
)

// DefaultCapacity is the number of entries retained.
const DefaultCapacity = 10

// Entry is one observation.
type Entry struct {
	Emotion   emotion.Emotion `json:"emotion"`
	Timestamp time.Time       `json:"timestamp"`
}

// Ring is safe for concurrent use.
type Ring struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	path     string
}

// Option configures a Ring.
type Option func(*Ring)

// WithSnapshotFile rewrites path with the full log after every Add.
func WithSnapshotFile(path string) Option {
	return func(r *Ring) {
		r.path = path
	}
}

// New creates a ring. capacity <= 0 uses DefaultCapacity.
func New(capacity int, opts ...Option) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Ring{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads a previously written snapshot file, keeping only the newest
// entries that fit. A missing file is not an error.
func (r *Ring) Load() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read emotion log: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode emotion log: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(entries) > r.capacity {
		entries = entries[len(entries)-r.capacity:]
	}
	r.entries = append(r.entries[:0], entries...)
	return nil
}

// Add appends e, evicting the oldest entry once full. The in-memory log is
// updated even when writing the snapshot fails.
func (r *Ring) Add(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, e)

	if r.path == "" {
		return nil
	}
	return r.persistLocked()
}

// Snapshot returns the entries oldest first.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Ring) Cap() int {
	return r.capacity
}

func (r *Ring) persistLocked() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode emotion log: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create emotion log dir: %w", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write emotion log: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace emotion log: %w", err)
	}
	return nil
}
