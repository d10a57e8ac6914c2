package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jeefy/pybot/internal/models"
	"github.com/jeefy/pybot/internal/store"
)

// eachStore runs fn against every Store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, st store.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "pybot.db"), nil)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		fn(t, st)
	})
}

func corpus(pairs ...string) []models.PatternEntry {
	var out []models.PatternEntry
	for i := 0; i+2 < len(pairs); i += 3 {
		out = append(out, models.PatternEntry{Pattern: pairs[i], Response: pairs[i+1], Category: pairs[i+2]})
	}
	return out
}

func patternNames(ps []models.PatternEntry) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Pattern + "/" + p.Category
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSeedKeepsCorpusOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		seed := corpus(
			"hello", "Hi!", "greeting",
			"for loop", "Loops iterate.", "loops",
			"pytest", "Test things.", "testing",
			"for loop", "Iterate over sequences.", "control",
		)
		res, err := st.SeedPatterns(ctx, seed)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		if res.Upserted != 4 || res.Removed != 0 {
			t.Fatalf("unexpected seed result %+v", res)
		}
		got, err := st.ListPatterns(ctx, store.PatternFilter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := []string{"hello/greeting", "for loop/loops", "pytest/testing", "for loop/control"}
		if !equalStrings(patternNames(got), want) {
			t.Fatalf("got order %v want %v", patternNames(got), want)
		}
		for _, p := range got {
			if p.Source != models.SourceBuiltin {
				t.Fatalf("expected builtin source, got %q", p.Source)
			}
		}
	})
}

func TestReseedPreservesTrainedPatterns(t *testing.T) {
	eachStore(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		if _, err := st.SeedPatterns(ctx, corpus("hello", "Hi!", "greeting", "bye", "Bye!", "greeting")); err != nil {
			t.Fatalf("seed: %v", err)
		}
		trained := &models.PatternEntry{Pattern: "  walrus operator ", Response: "Use := to assign in expressions."}
		id, err := st.AddPattern(ctx, trained)
		if err != nil {
			t.Fatalf("add pattern: %v", err)
		}
		if trained.Pattern != "walrus operator" || trained.Category != models.CategoryCustom {
			t.Fatalf("pattern not normalized: %+v", trained)
		}

		res, err := st.SeedPatterns(ctx, corpus("hello", "Hello there!", "greeting", "python", "A language.", "basics"))
		if err != nil {
			t.Fatalf("reseed: %v", err)
		}
		if res.Upserted != 2 || res.Removed != 1 {
			t.Fatalf("unexpected reseed result %+v", res)
		}

		got, err := st.ListPatterns(ctx, store.PatternFilter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := []string{"hello/greeting", "python/basics", "walrus operator/custom"}
		if !equalStrings(patternNames(got), want) {
			t.Fatalf("got %v want %v", patternNames(got), want)
		}
		if got[0].Response != "Hello there!" {
			t.Fatalf("expected updated response, got %q", got[0].Response)
		}
		if got[2].ID != id {
			t.Fatalf("trained pattern id changed: %d != %d", got[2].ID, id)
		}

		trainedOnly, err := st.ListPatterns(ctx, store.PatternFilter{Source: models.SourceTrained})
		if err != nil {
			t.Fatalf("list trained: %v", err)
		}
		if len(trainedOnly) != 1 {
			t.Fatalf("expected 1 trained pattern, got %d", len(trainedOnly))
		}
	})
}

func TestSeedIsIdempotent(t *testing.T) {
	eachStore(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		seed := corpus("hello", "Hi!", "greeting", "hi", "Hello!", "greeting")
		for i := 0; i < 3; i++ {
			if _, err := st.SeedPatterns(ctx, seed); err != nil {
				t.Fatalf("seed %d: %v", i, err)
			}
		}
		stats, err := st.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.TotalPatterns != 2 {
			t.Fatalf("expected 2 patterns after repeated seeding, got %d", stats.TotalPatterns)
		}
	})
}

func TestAddPatternValidation(t *testing.T) {
	eachStore(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		for _, p := range []*models.PatternEntry{
			{Pattern: "", Response: "x"},
			{Pattern: "x", Response: "   "},
			nil,
		} {
			if _, err := st.AddPattern(ctx, p); !errors.Is(err, store.ErrInvalidPattern) {
				t.Fatalf("expected ErrInvalidPattern for %+v, got %v", p, err)
			}
		}
	})
}

func TestAddPatternTwiceReplacesResponse(t *testing.T) {
	eachStore(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		first, err := st.AddPattern(ctx, &models.PatternEntry{Pattern: "numpy", Response: "old", Category: "libraries"})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		second, err := st.AddPattern(ctx, &models.PatternEntry{Pattern: "numpy", Response: "new", Category: "libraries"})
		if err != nil {
			t.Fatalf("add again: %v", err)
		}
		if first != second {
			t.Fatalf("expected same id, got %d and %d", first, second)
		}
		p, err := st.GetPattern(ctx, first)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if p.Response != "new" {
			t.Fatalf("expected replaced response, got %q", p.Response)
		}
	})
}

func TestDeletePattern(t *testing.T) {
	eachStore(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		if _, err := st.SeedPatterns(ctx, corpus("hello", "Hi!", "greeting")); err != nil {
			t.Fatalf("seed: %v", err)
		}
		builtin, err := st.ListPatterns(ctx, store.PatternFilter{Source: models.SourceBuiltin})
		if err != nil || len(builtin) != 1 {
			t.Fatalf("list builtin: %v (%d rows)", err, len(builtin))
		}
		if err := st.DeletePattern(ctx, builtin[0].ID); !errors.Is(err, store.ErrBuiltinPattern) {
			t.Fatalf("expected ErrBuiltinPattern, got %v", err)
		}

		id, err := st.AddPattern(ctx, &models.PatternEntry{Pattern: "pip", Response: "pip install x"})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := st.DeletePattern(ctx, id); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := st.GetPattern(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := st.DeletePattern(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestConversationLog(t *testing.T) {
	eachStore(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		for _, in := range []string{"hello", "what is python", "bye"} {
			rec := &models.ConversationRecord{InputText: in, Response: "answer to " + in, Confidence: 0.9, Category: "greeting", Style: "balanced"}
			if _, err := st.SaveConversation(ctx, rec); err != nil {
				t.Fatalf("save: %v", err)
			}
			if rec.ID == 0 || rec.Timestamp.IsZero() {
				t.Fatalf("expected id and timestamp to be set: %+v", rec)
			}
		}

		recent, err := st.RecentConversations(ctx, 2)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(recent) != 2 || recent[0].InputText != "bye" || recent[1].InputText != "what is python" {
			t.Fatalf("unexpected recent conversations: %+v", recent)
		}

		got, err := st.GetConversation(ctx, recent[1].ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Response != "answer to what is python" || got.Confidence != 0.9 || got.Style != "balanced" {
			t.Fatalf("unexpected record %+v", got)
		}
		if got.Timestamp.IsZero() {
			t.Fatalf("timestamp not round-tripped")
		}
		if _, err := st.GetConversation(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStats(t *testing.T) {
	eachStore(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		if _, err := st.SeedPatterns(ctx, corpus("hello", "Hi!", "greeting", "hi", "Hey!", "greeting", "list", "Lists.", "lists")); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if _, err := st.AddPattern(ctx, &models.PatternEntry{Pattern: "pip", Response: "pip install"}); err != nil {
			t.Fatalf("add: %v", err)
		}
		if _, err := st.SaveConversation(ctx, &models.ConversationRecord{InputText: "hi", Response: "Hey!", Confidence: 1}); err != nil {
			t.Fatalf("save: %v", err)
		}
		stats, err := st.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.TotalPatterns != 4 || stats.TrainedPatterns != 1 || stats.TotalConversations != 1 {
			t.Fatalf("unexpected totals %+v", stats)
		}
		if stats.Categories["greeting"] != 2 || stats.Categories["lists"] != 1 || stats.Categories["custom"] != 1 {
			t.Fatalf("unexpected categories %v", stats.Categories)
		}
	})
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pybot.db")

	st, err := store.OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := st.AddPattern(ctx, &models.PatternEntry{Pattern: "venv", Response: "python -m venv .venv"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	st.Close()

	st, err = store.OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, err := st.ListPatterns(ctx, store.PatternFilter{Source: models.SourceTrained})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Pattern != "venv" {
		t.Fatalf("trained pattern lost across reopen: %+v", got)
	}
}

func TestBuiltinCorpus(t *testing.T) {
	entries, err := store.BuiltinCorpus()
	if err != nil {
		t.Fatalf("builtin corpus: %v", err)
	}
	if len(entries) < 150 {
		t.Fatalf("expected the full corpus, got %d entries", len(entries))
	}
	if entries[0].Pattern != "hello" || entries[0].Category != "greeting" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	for i, e := range entries {
		if e.Pattern == "" || e.Response == "" || e.Source != models.SourceBuiltin {
			t.Fatalf("entry %d incomplete: %+v", i, e)
		}
	}
}
