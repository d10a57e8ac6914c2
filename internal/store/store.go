package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeefy/pybot/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidPattern = errors.New("pattern and response are required")
	// ErrBuiltinPattern is returned when a caller tries to remove a corpus pattern.
	ErrBuiltinPattern = errors.New("built-in patterns cannot be deleted")
)

// Store persists the pattern corpus and the conversation log. Implementations can
// be in-memory (tests) or backed by SQLite.
type Store interface {
	// ListPatterns returns patterns in matching order: built-in rows in corpus
	// order, then trained rows in insertion order.
	ListPatterns(ctx context.Context, filter PatternFilter) ([]models.PatternEntry, error)
	GetPattern(ctx context.Context, id int64) (*models.PatternEntry, error)
	// AddPattern stores a trained pattern and returns its id.
	AddPattern(ctx context.Context, p *models.PatternEntry) (int64, error)
	// DeletePattern removes a trained pattern.
	DeletePattern(ctx context.Context, id int64) error
	// SeedPatterns makes the built-in rows equal to entries. Trained rows are untouched.
	SeedPatterns(ctx context.Context, entries []models.PatternEntry) (SeedResult, error)

	SaveConversation(ctx context.Context, rec *models.ConversationRecord) (int64, error)
	GetConversation(ctx context.Context, id int64) (*models.ConversationRecord, error)
	// RecentConversations returns up to limit records, newest first.
	RecentConversations(ctx context.Context, limit int) ([]models.ConversationRecord, error)

	Stats(ctx context.Context) (models.Stats, error)
	Close() error
}

// PatternFilter narrows ListPatterns. Empty fields match everything.
type PatternFilter struct {
	Category string
	Source   string
}

func (f PatternFilter) matches(p models.PatternEntry) bool {
	return (f.Category == "" || f.Category == p.Category) && (f.Source == "" || f.Source == p.Source)
}

type SeedResult struct {
	Upserted int `json:"upserted"`
	Removed  int `json:"removed"`
}

// normalizePattern trims a trained pattern and applies defaults.
func normalizePattern(p *models.PatternEntry) error {
	if p == nil {
		return fmt.Errorf("nil pattern: %w", ErrInvalidPattern)
	}
	p.Pattern = strings.TrimSpace(p.Pattern)
	p.Response = strings.TrimSpace(p.Response)
	p.Category = strings.TrimSpace(p.Category)
	if p.Pattern == "" || p.Response == "" {
		return ErrInvalidPattern
	}
	if p.Category == "" {
		p.Category = models.CategoryCustom
	}
	p.Source = models.SourceTrained
	return nil
}

// seedKey identifies a built-in row across reseeds.
type seedKey struct{ pattern, category string }

func dedupeSeed(entries []models.PatternEntry) []models.PatternEntry {
	seen := make(map[seedKey]bool, len(entries))
	out := make([]models.PatternEntry, 0, len(entries))
	for _, e := range entries {
		k := seedKey{e.Pattern, e.Category}
		if seen[k] || e.Pattern == "" || e.Response == "" {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}
