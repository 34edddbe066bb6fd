package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "vestbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) FindByIdentity(ctx context.Context, identity string) (Subscriber, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, identity, categories, created_at FROM subscribers WHERE identity = ?`, identity)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscriber{}, false, nil
	}
	if err != nil {
		return Subscriber{}, false, err
	}
	return sub, true, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, sub Subscriber) (Subscriber, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	cats, err := marshalCategories(sub.Categories)
	if err != nil {
		return Subscriber{}, err
	}
	// Insert-or-ignore keeps creation idempotent by identity.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscribers(identity, categories, created_at) VALUES(?,?,?)
		 ON CONFLICT(identity) DO NOTHING`,
		sub.Identity, cats, sub.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Subscriber{}, err
	}
	got, ok, err := s.FindByIdentity(ctx, sub.Identity)
	if err != nil {
		return Subscriber{}, err
	}
	if !ok {
		return Subscriber{}, fmt.Errorf("upsert %s: %w", sub.Identity, ErrNotFound)
	}
	return got, nil
}

func (s *sqliteStore) UpdateCategories(ctx context.Context, identity string, categories []string) error {
	cats, err := marshalCategories(categories)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET categories = ? WHERE identity = ?`, cats, identity)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s: %w", identity, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, identity string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE identity = ?`, identity)
	return err
}

func (s *sqliteStore) ListSubscribed(ctx context.Context, category string) ([]Subscriber, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if category == "all" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, identity, categories, created_at FROM subscribers
			 WHERE json_array_length(categories) > 0 ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, identity, categories, created_at FROM subscribers s
			 WHERE EXISTS (
			     SELECT 1 FROM json_each(s.categories) je WHERE je.value IN (?, 'all')
			 ) ORDER BY id`, category)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, ms,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(r rowScanner) (Subscriber, error) {
	var (
		sub     Subscriber
		cats    string
		created string
	)
	if err := r.Scan(&sub.ID, &sub.Identity, &cats, &created); err != nil {
		return Subscriber{}, err
	}
	if err := json.Unmarshal([]byte(cats), &sub.Categories); err != nil {
		return Subscriber{}, fmt.Errorf("decode categories for %s: %w", sub.Identity, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		sub.CreatedAt = t
	}
	return sub, nil
}

func marshalCategories(categories []string) (string, error) {
	if categories == nil {
		categories = []string{}
	}
	b, err := json.Marshal(categories)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
