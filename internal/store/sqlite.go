package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jeefy/pybot/internal/models"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
// The first one matches the layout of databases created by earlier releases.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		input_text TEXT NOT NULL,
		response_text TEXT NOT NULL,
		confidence REAL DEFAULT 0.8,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern TEXT NOT NULL,
		response TEXT NOT NULL,
		category TEXT DEFAULT 'general'
	);`,
	// Older releases rewrote every pattern on start, so existing rows are all corpus
	// copies and are reseeded.
	`DELETE FROM patterns;
	ALTER TABLE patterns ADD COLUMN source TEXT NOT NULL DEFAULT 'builtin';
	ALTER TABLE patterns ADD COLUMN position INTEGER;
	CREATE UNIQUE INDEX IF NOT EXISTS patterns_identity ON patterns(pattern, category, source);
	ALTER TABLE conversations ADD COLUMN category TEXT;
	ALTER TABLE conversations ADD COLUMN style TEXT;`,
}

const patternOrder = `ORDER BY CASE source WHEN 'builtin' THEN 0 ELSE 1 END, position, id`

// SQLiteStore is the durable Store used by the server.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db, path: path, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Describe names the storage engine for status reporting.
func (s *SQLiteStore) Describe() string { return "SQLite Local Storage" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
		s.logger.Info("applied schema migration", "version", i+1, "db", s.path)
	}
	return nil
}

func (s *SQLiteStore) ListPatterns(ctx context.Context, filter PatternFilter) ([]models.PatternEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	q := "SELECT id, pattern, response, category, source FROM patterns"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, q+" "+patternOrder, args...)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var out []models.PatternEntry
	for rows.Next() {
		var p models.PatternEntry
		var category sql.NullString
		if err := rows.Scan(&p.ID, &p.Pattern, &p.Response, &category, &p.Source); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.Category = category.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetPattern(ctx context.Context, id int64) (*models.PatternEntry, error) {
	var p models.PatternEntry
	var category sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, pattern, response, category, source FROM patterns WHERE id = ?", id,
	).Scan(&p.ID, &p.Pattern, &p.Response, &category, &p.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pattern %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern %d: %w", id, err)
	}
	p.Category = category.String
	return &p, nil
}

func (s *SQLiteStore) AddPattern(ctx context.Context, p *models.PatternEntry) (int64, error) {
	if err := normalizePattern(p); err != nil {
		return 0, err
	}
	// Training the same pattern twice replaces the answer instead of failing.
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO patterns (pattern, response, category, source) VALUES (?, ?, ?, ?)
		ON CONFLICT(pattern, category, source) DO UPDATE SET response = excluded.response
		RETURNING id`,
		p.Pattern, p.Response, p.Category, p.Source,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add pattern: %w", err)
	}
	p.ID = id
	return id, nil
}

func (s *SQLiteStore) DeletePattern(ctx context.Context, id int64) error {
	p, err := s.GetPattern(ctx, id)
	if err != nil {
		return err
	}
	if p.Source != models.SourceTrained {
		return fmt.Errorf("pattern %d: %w", id, ErrBuiltinPattern)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM patterns WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete pattern %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) SeedPatterns(ctx context.Context, entries []models.PatternEntry) (SeedResult, error) {
	entries = dedupeSeed(entries)
	var res SeedResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO patterns (pattern, response, category, source, position) VALUES (?, ?, ?, 'builtin', ?)
		ON CONFLICT(pattern, category, source) DO UPDATE SET
			response = excluded.response,
			position = excluded.position`)
	if err != nil {
		return res, fmt.Errorf("prepare seed: %w", err)
	}
	defer upsert.Close()

	keep := make(map[seedKey]bool, len(entries))
	for i, e := range entries {
		if _, err := upsert.ExecContext(ctx, e.Pattern, e.Response, e.Category, i); err != nil {
			return res, fmt.Errorf("seed %q: %w", e.Pattern, err)
		}
		keep[seedKey{e.Pattern, e.Category}] = true
		res.Upserted++
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, pattern, category FROM patterns WHERE source = 'builtin'")
	if err != nil {
		return res, fmt.Errorf("scan built-in patterns: %w", err)
	}
	var stale []int64
	for rows.Next() {
		var (
			id                int64
			pattern, category string
		)
		if err := rows.Scan(&id, &pattern, &category); err != nil {
			rows.Close()
			return res, fmt.Errorf("scan built-in pattern: %w", err)
		}
		if !keep[seedKey{pattern, category}] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM patterns WHERE id = ?", id); err != nil {
			return res, fmt.Errorf("remove stale pattern %d: %w", id, err)
		}
		res.Removed++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit seed: %w", err)
	}
	return res, nil
}

func (s *SQLiteStore) SaveConversation(ctx context.Context, rec *models.ConversationRecord) (int64, error) {
	if rec == nil {
		return 0, errors.New("nil conversation")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (input_text, response_text, confidence, category, style, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.InputText, rec.Response, rec.Confidence, rec.Category, rec.Style,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("save conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("conversation id: %w", err)
	}
	rec.ID = id
	return id, nil
}

const conversationColumns = "id, input_text, response_text, confidence, category, style, timestamp"

func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*models.ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id)
	rec, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) RecentConversations(ctx context.Context, limit int) ([]models.ConversationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent conversations: %w", err)
	}
	defer rows.Close()

	out := []models.ConversationRecord{}
	for rows.Next() {
		rec, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (*models.ConversationRecord, error) {
	var (
		rec             models.ConversationRecord
		confidence      sql.NullFloat64
		category, style sql.NullString
		ts              sqliteTime
	)
	if err := r.Scan(&rec.ID, &rec.InputText, &rec.Response, &confidence, &category, &style, &ts); err != nil {
		return nil, err
	}
	rec.Confidence = confidence.Float64
	rec.Category = category.String
	rec.Style = style.String
	rec.Timestamp = ts.Time
	return &rec, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (models.Stats, error) {
	st := models.Stats{Categories: map[string]int64{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&st.TotalConversations); err != nil {
		return st, fmt.Errorf("count conversations: %w", err)
	}
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(CASE WHEN source = 'trained' THEN 1 END) FROM patterns",
	).Scan(&st.TotalPatterns, &st.TrainedPatterns)
	if err != nil {
		return st, fmt.Errorf("count patterns: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT COALESCE(category, ''), COUNT(*) FROM patterns GROUP BY category")
	if err != nil {
		return st, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cat string
			n   int64
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return st, fmt.Errorf("scan category: %w", err)
		}
		st.Categories[cat] = n
	}
	return st, rows.Err()
}

// sqliteTime accepts the timestamp shapes found in the conversations table: our own
// RFC 3339 strings, CURRENT_TIMESTAMP defaults from older rows, or a driver-parsed time.
type sqliteTime struct{ time.Time }

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04:05.999999999-07:00"}

func (t *sqliteTime) Scan(v any) error {
	var s string
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = x
		return nil
	case string:
		s = x
	case []byte:
		s = string(x)
	case int64:
		t.Time = time.Unix(x, 0).UTC()
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
