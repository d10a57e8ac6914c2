package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeefy/pybot/internal/models"
)

// inMemoryStore is the in-memory implementation of Store used for testing and
// throwaway local runs (--db :memory:).
type inMemoryStore struct {
	mu            sync.RWMutex
	patterns      map[int64]*models.PatternEntry
	positions     map[int64]int
	conversations map[int64]*models.ConversationRecord
	convIDs       []int64
	nextPattern   int64
	nextConv      int64
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &inMemoryStore{
		patterns:      make(map[int64]*models.PatternEntry),
		positions:     make(map[int64]int),
		conversations: make(map[int64]*models.ConversationRecord),
		nextPattern:   1,
		nextConv:      1,
	}
}

func (s *inMemoryStore) Close() error { return nil }

func (s *inMemoryStore) Describe() string { return "In-Memory Storage" }

// ordered returns patterns in matching order. Caller holds the lock.
func (s *inMemoryStore) ordered() []*models.PatternEntry {
	out := make([]*models.PatternEntry, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Source == models.SourceBuiltin) != (b.Source == models.SourceBuiltin) {
			return a.Source == models.SourceBuiltin
		}
		if a.Source == models.SourceBuiltin && s.positions[a.ID] != s.positions[b.ID] {
			return s.positions[a.ID] < s.positions[b.ID]
		}
		return a.ID < b.ID
	})
	return out
}

func (s *inMemoryStore) ListPatterns(ctx context.Context, filter PatternFilter) ([]models.PatternEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PatternEntry
	for _, p := range s.ordered() {
		if filter.matches(*p) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *inMemoryStore) GetPattern(ctx context.Context, id int64) (*models.PatternEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, fmt.Errorf("pattern %d: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// find returns the row with the given identity. Caller holds the lock.
func (s *inMemoryStore) find(pattern, category, source string) *models.PatternEntry {
	for _, p := range s.patterns {
		if p.Pattern == pattern && p.Category == category && p.Source == source {
			return p
		}
	}
	return nil
}

func (s *inMemoryStore) AddPattern(ctx context.Context, p *models.PatternEntry) (int64, error) {
	if err := normalizePattern(p); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.find(p.Pattern, p.Category, p.Source); existing != nil {
		existing.Response = p.Response
		p.ID = existing.ID
		return existing.ID, nil
	}
	p.ID = s.nextPattern
	s.nextPattern++
	cp := *p
	s.patterns[cp.ID] = &cp
	return cp.ID, nil
}

func (s *inMemoryStore) DeletePattern(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[id]
	if !ok {
		return fmt.Errorf("pattern %d: %w", id, ErrNotFound)
	}
	if p.Source != models.SourceTrained {
		return fmt.Errorf("pattern %d: %w", id, ErrBuiltinPattern)
	}
	delete(s.patterns, id)
	return nil
}

func (s *inMemoryStore) SeedPatterns(ctx context.Context, entries []models.PatternEntry) (SeedResult, error) {
	entries = dedupeSeed(entries)
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SeedResult
	keep := make(map[int64]bool, len(entries))
	for i, e := range entries {
		row := s.find(e.Pattern, e.Category, models.SourceBuiltin)
		if row == nil {
			row = &models.PatternEntry{
				ID:       s.nextPattern,
				Pattern:  e.Pattern,
				Category: e.Category,
				Source:   models.SourceBuiltin,
			}
			s.nextPattern++
			s.patterns[row.ID] = row
		}
		row.Response = e.Response
		s.positions[row.ID] = i
		keep[row.ID] = true
		res.Upserted++
	}
	for id, p := range s.patterns {
		if p.Source == models.SourceBuiltin && !keep[id] {
			delete(s.patterns, id)
			delete(s.positions, id)
			res.Removed++
		}
	}
	return res, nil
}

func (s *inMemoryStore) SaveConversation(ctx context.Context, rec *models.ConversationRecord) (int64, error) {
	if rec == nil {
		return 0, errors.New("nil conversation")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.ID = s.nextConv
	s.nextConv++
	cp := *rec
	s.conversations[cp.ID] = &cp
	s.convIDs = append(s.convIDs, cp.ID)
	return cp.ID, nil
}

func (s *inMemoryStore) GetConversation(ctx context.Context, id int64) (*models.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *inMemoryStore) RecentConversations(ctx context.Context, limit int) ([]models.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	out := []models.ConversationRecord{}
	for i := len(s.convIDs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.conversations[s.convIDs[i]])
	}
	return out, nil
}

func (s *inMemoryStore) Stats(ctx context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := models.Stats{
		TotalConversations: int64(len(s.conversations)),
		TotalPatterns:      int64(len(s.patterns)),
		Categories:         map[string]int64{},
	}
	for _, p := range s.patterns {
		if p.Source == models.SourceTrained {
			st.TrainedPatterns++
		}
		st.Categories[p.Category]++
	}
	return st, nil
}
