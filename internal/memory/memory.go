// Package memory implements a capacity-bounded working memory of embedded
// experiences with cosine similarity lookup.
//
// Retrieval is itself a learning signal: the entries returned by a search
// have their access bookkeeping refreshed, which protects them from eviction.
// Eviction removes the entry minimizing
//
//	last_access * importance * ln(1 + access_count)
//
// so old, unimportant and rarely retrieved entries go first.
//
// WorkingMemory is not safe for concurrent use. Callers sharing an instance
// must fence Add, SimilaritySearch and Remove behind their own lock.
package memory

import (
	"encoding/json"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/recalld/internal/vecmath"
)

// DefaultImportance is applied to entries that do not declare one.
const DefaultImportance = 0.5

// parallelThreshold is the store size below which search stays sequential.
const parallelThreshold = 256

// Entry is a single remembered experience.
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	// AccessCount is 1 after insertion and grows with each retrieval.
	AccessCount uint32 `json:"access_count"`
	// LastAccess is milliseconds since the owning memory was created.
	LastAccess uint64   `json:"last_access"`
	Importance float64  `json:"importance"`
	Tags       []string `json:"tags"`
}

// UnmarshalJSON applies DefaultImportance when importance is absent.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	aux := plain{Importance: DefaultImportance}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Entry(aux)
	return nil
}

func (e Entry) clone() Entry {
	e.Embedding = append([]float32(nil), e.Embedding...)
	e.Tags = append([]string(nil), e.Tags...)
	return e
}

// evictionScore ranks entries for eviction; lower goes first.
func (e *Entry) evictionScore() float64 {
	return float64(e.LastAccess) * e.Importance * math.Log1p(float64(e.AccessCount))
}

// SimilarityResult is one hit from SimilaritySearch.
type SimilarityResult struct {
	Index      int     `json:"index"`
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// WorkingMemory is a bounded list of entries.
type WorkingMemory struct {
	entries  []Entry
	capacity int
	created  time.Time
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a WorkingMemory.
type Option func(*WorkingMemory)

// WithClock overrides the time source used for access timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *WorkingMemory) {
		m.now = now
	}
}

// WithLogger sets the logger used for eviction events.
func WithLogger(l *zap.Logger) Option {
	return func(m *WorkingMemory) {
		m.logger = l
	}
}

// New creates a working memory holding at most capacity entries. A capacity
// below 1 is raised to 1.
func New(capacity int, opts ...Option) *WorkingMemory {
	m := &WorkingMemory{
		capacity: max(1, capacity),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.created = m.now()
	m.entries = make([]Entry, 0, min(m.capacity, 1024))
	return m
}

// elapsed returns milliseconds since the memory was created.
func (m *WorkingMemory) elapsed() uint64 {
	d := m.now().Sub(m.created)
	if d < 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}

// Add stores entry and returns its index. The embedding is copied and
// normalized, importance is clamped to [0, 1], access bookkeeping is reset, and an empty ID is replaced with
// a generated one. At capacity, one existing entry is evicted first.
func (m *WorkingMemory) Add(entry Entry) int {
	entry = entry.clone()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	vecmath.Normalize(entry.Embedding)
	entry.Importance = clampImportance(entry.Importance)
	entry.AccessCount = 1
	entry.LastAccess = m.elapsed()

	if len(m.entries) >= m.capacity {
		victim := m.evictionCandidate()
		m.logger.Debug("working memory eviction",
			zap.String("evicted_id", m.entries[victim].ID),
			zap.Float64("importance", m.entries[victim].Importance))
		m.entries = append(m.entries[:victim], m.entries[victim+1:]...)
	}

	m.entries = append(m.entries, entry)
	return len(m.entries) - 1
}

// clampImportance bounds importance to [0, 1]; NaN becomes DefaultImportance.
func clampImportance(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultImportance
	}
	return math.Max(0, math.Min(1, v))
}

// evictionCandidate returns the index of the lowest-scoring entry; the
// earliest entry wins ties.
func (m *WorkingMemory) evictionCandidate() int {
	best := 0
	bestScore := m.entries[0].evictionScore()
	for i := 1; i < len(m.entries); i++ {
		if s := m.entries[i].evictionScore(); s < bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// SimilaritySearch returns up to topK entries most similar to query, highest
// first. Returned entries have their access count incremented and their last
// access refreshed. An empty store or empty query yields no results.
func (m *WorkingMemory) SimilaritySearch(query []float32, topK int) []SimilarityResult {
	if len(m.entries) == 0 || len(query) == 0 || topK <= 0 {
		return nil
	}

	q := vecmath.Normalized(query)
	results := make([]SimilarityResult, len(m.entries))
	m.similarities(q, results)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	results = results[:min(topK, len(results))]

	now := m.elapsed()
	for _, r := range results {
		e := &m.entries[r.Index]
		e.LastAccess = now
		e.AccessCount++
	}
	return results
}

// similarities fills out[i] for every entry. Large stores are split into
// chunks scored in parallel; entries are only read during this phase.
func (m *WorkingMemory) similarities(q []float32, out []SimilarityResult) {
	fill := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = SimilarityResult{
				Index:      i,
				ID:         m.entries[i].ID,
				Similarity: vecmath.CosineSimilarity(q, m.entries[i].Embedding),
			}
		}
	}

	n := len(m.entries)
	if n < parallelThreshold {
		fill(0, n)
		return
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fill(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// Get returns a copy of the entry at index.
func (m *WorkingMemory) Get(index int) (Entry, bool) {
	if index < 0 || index >= len(m.entries) {
		return Entry{}, false
	}
	return m.entries[index].clone(), true
}

// GetByID returns a copy of the first entry with the given id.
func (m *WorkingMemory) GetByID(id string) (Entry, bool) {
	for i := range m.entries {
		if m.entries[i].ID == id {
			return m.entries[i].clone(), true
		}
	}
	return Entry{}, false
}

// Remove deletes the first entry with the given id.
func (m *WorkingMemory) Remove(id string) bool {
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns copies of all entries in index order.
func (m *WorkingMemory) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i := range m.entries {
		out[i] = m.entries[i].clone()
	}
	return out
}

// Len returns the number of stored entries.
func (m *WorkingMemory) Len() int { return len(m.entries) }

// IsEmpty reports whether the memory holds no entries.
func (m *WorkingMemory) IsEmpty() bool { return len(m.entries) == 0 }

// Capacity returns the maximum number of entries.
func (m *WorkingMemory) Capacity() int { return m.capacity }

// Clear removes all entries.
func (m *WorkingMemory) Clear() {
	m.entries = m.entries[:0]
}
