package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/compass-dev/compass/internal/consensus"
)

const (
	// LongTermCapacity bounds the process-wide store; eviction is FIFO.
	LongTermCapacity = 1000

	// AdmissionThreshold is the minimum agreement score for long-term
	// admission.
	AdmissionThreshold = 0.80
)

// Backend abstracts long-term persistence. Implementations need not be
// concurrency-safe: LongTermStore serialises every call behind its lock.
type Backend interface {
	// Push appends an entry.
	Push(ctx context.Context, entry MemoryEntry) error

	// PopOldest removes and returns the first entry.
	PopOldest(ctx context.Context) (MemoryEntry, error)

	// Entries returns all entries in insertion order.
	Entries(ctx context.Context) ([]MemoryEntry, error)

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)

	// AddQuestion, RemoveQuestion and HasQuestion maintain the set of
	// normalized questions used for duplicate detection.
	AddQuestion(ctx context.Context, normalized string) error
	RemoveQuestion(ctx context.Context, normalized string) error
	HasQuestion(ctx context.Context, normalized string) (bool, error)

	Close() error
}

// LongTermStore is the bounded FIFO store of high-agreement answers. A
// single process-wide lock serialises all access.
type LongTermStore struct {
	mu      sync.Mutex
	backend Backend
}

// NewLongTermStore wraps a backend; nil means the in-memory backend.
func NewLongTermStore(backend Backend) *LongTermStore {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &LongTermStore{backend: backend}
}

// Consider applies the admission rule and stores the entry if it passes:
// agreement score at or above the threshold, a verdict other than
// no-consensus, and a question not already present (case-folded, trimmed).
// It returns whether the entry was admitted.
func (s *LongTermStore) Consider(ctx context.Context, entry MemoryEntry) (bool, error) {
	if entry.Score < AdmissionThreshold || entry.Verdict == consensus.VerdictNoConsensus {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := normalizeQuestion(entry.Question)
	dup, err := s.backend.HasQuestion(ctx, normalized)
	if err != nil {
		return false, err
	}
	if dup {
		return false, nil
	}

	n, err := s.backend.Len(ctx)
	if err != nil {
		return false, err
	}
	if n >= LongTermCapacity {
		oldest, err := s.backend.PopOldest(ctx)
		if err != nil {
			return false, err
		}
		if err := s.backend.RemoveQuestion(ctx, normalizeQuestion(oldest.Question)); err != nil {
			return false, err
		}
	}

	if err := s.backend.Push(ctx, entry); err != nil {
		return false, err
	}
	if err := s.backend.AddQuestion(ctx, normalized); err != nil {
		return false, err
	}
	return true, nil
}

// Match is one similar-query lookup hit.
type Match struct {
	Entry MemoryEntry `json:"entry"`
	Score float64     `json:"score"`
}

// FindSimilar scores every stored entry by the fraction of the question's
// keywords that appear in the entry's question and returns the top k,
// highest first. Entries with no keyword overlap are dropped.
func (s *LongTermStore) FindSimilar(ctx context.Context, question string, k int) ([]Match, error) {
	terms := keywords(question)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	entries, err := s.backend.Entries(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, e := range entries {
		folded := strings.ToLower(e.Question)
		hits := 0
		for _, term := range terms {
			if strings.Contains(folded, term) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, Match{Entry: e, Score: float64(hits) / float64(len(terms))})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len returns the number of stored entries.
func (s *LongTermStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Len(ctx)
}

// Close releases the backend.
func (s *LongTermStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

// MemoryBackend is the default in-process Backend.
type MemoryBackend struct {
	entries   []MemoryEntry
	questions map[string]bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{questions: make(map[string]bool)}
}

func (b *MemoryBackend) Push(_ context.Context, entry MemoryEntry) error {
	b.entries = append(b.entries, entry)
	return nil
}

func (b *MemoryBackend) PopOldest(_ context.Context) (MemoryEntry, error) {
	oldest := b.entries[0]
	b.entries = b.entries[1:]
	return oldest, nil
}

func (b *MemoryBackend) Entries(_ context.Context) ([]MemoryEntry, error) {
	out := make([]MemoryEntry, len(b.entries))
	copy(out, b.entries)
	return out, nil
}

func (b *MemoryBackend) Len(_ context.Context) (int, error) {
	return len(b.entries), nil
}

func (b *MemoryBackend) AddQuestion(_ context.Context, normalized string) error {
	b.questions[normalized] = true
	return nil
}

func (b *MemoryBackend) RemoveQuestion(_ context.Context, normalized string) error {
	delete(b.questions, normalized)
	return nil
}

func (b *MemoryBackend) HasQuestion(_ context.Context, normalized string) (bool, error) {
	return b.questions[normalized], nil
}

func (b *MemoryBackend) Close() error { return nil }
