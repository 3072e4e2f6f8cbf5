package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
)

// Schema bootstrap. Counters live on the track row; ledger rows and
// history buckets are separate tables so appends never rewrite the
// aggregate.
const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	track_id          TEXT PRIMARY KEY,
	title             TEXT NOT NULL DEFAULT '',
	artists           TEXT NOT NULL DEFAULT '[]',
	album             TEXT NOT NULL DEFAULT '',
	genres            TEXT NOT NULL DEFAULT '[]',
	duration_ms       INTEGER NOT NULL DEFAULT 0,
	added_at          TIMESTAMP NOT NULL,
	rating            REAL NOT NULL DEFAULT 1500,
	rating_confidence INTEGER NOT NULL DEFAULT 0,
	total_plays       INTEGER NOT NULL DEFAULT 0,
	skip_count        INTEGER NOT NULL DEFAULT 0,
	download_count    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tracks_rating ON tracks(rating DESC);

CREATE TABLE IF NOT EXISTS rating_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id      TEXT NOT NULL,
	old_rating    REAL NOT NULL,
	new_rating    REAL NOT NULL,
	event_type    TEXT NOT NULL,
	rating_change REAL NOT NULL,
	confidence    INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rating_events_track
	ON rating_events(track_id, id DESC);

CREATE TABLE IF NOT EXISTS play_history (
	user_id    TEXT NOT NULL,
	year_month TEXT NOT NULL,
	plays      TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (user_id, year_month)
);
`

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting one store implementation serve both scopes.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStores implements Stores on a single SQLite database.
type SQLiteStores struct {
	db   *sql.DB
	path string
	busy time.Duration
}

// NewSQLiteStores opens (or creates) the database and bootstraps the
// schema.
func NewSQLiteStores(ctx context.Context, opts ...SQLiteOption) (*SQLiteStores, error) {
	s := &SQLiteStores{
		path: "harmonia.db",
		busy: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_txlock=immediate",
		s.path, s.busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY between our own
	// transactions; readers still go through WAL snapshots.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.db = db
	return s, nil
}

// Catalog returns the catalog store bound to the database scope.
func (s *SQLiteStores) Catalog() Catalog { return &sqliteCatalog{q: s.db} }

// Ledger returns the ledger store bound to the database scope.
func (s *SQLiteStores) Ledger() Ledger { return &sqliteLedger{q: s.db} }

// History returns the history store bound to the database scope.
func (s *SQLiteStores) History() History { return &sqliteHistory{q: s.db} }

// WithinTx runs fn against transaction-scoped stores.
func (s *SQLiteStores) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return asStoreError(err)
	}
	scoped := &txStores{tx: tx}
	if err := fn(ctx, scoped); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return asStoreError(err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// txStores is the transaction-scoped view handed to WithinTx callbacks.
type txStores struct {
	tx *sql.Tx
}

func (t *txStores) Catalog() Catalog { return &sqliteCatalog{q: t.tx} }
func (t *txStores) Ledger() Ledger   { return &sqliteLedger{q: t.tx} }
func (t *txStores) History() History { return &sqliteHistory{q: t.tx} }

// WithinTx on an already-scoped view just runs fn in the same transaction.
func (t *txStores) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	return fn(ctx, t)
}

func (t *txStores) Close() error { return nil }

// asStoreError maps driver and context failures onto the package
// sentinels so callers can distinguish chunk-local transient faults.
func asStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}
	return err
}

// ---- catalog ----

type sqliteCatalog struct {
	q querier
}

const trackColumns = `track_id, title, artists, album, genres, duration_ms, added_at,
	rating, rating_confidence, total_plays, skip_count, download_count`

func (c *sqliteCatalog) Get(ctx context.Context, trackID string) (model.Track, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE track_id = ?`, trackID)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Track{}, fmt.Errorf("%w: %s", ErrNotFound, trackID)
	}
	if err != nil {
		return model.Track{}, asStoreError(err)
	}
	return t, nil
}

func (c *sqliteCatalog) GetMany(ctx context.Context, trackIDs []string) (map[string]model.Track, error) {
	out := make(map[string]model.Track, len(trackIDs))
	if len(trackIDs) == 0 {
		return out, nil
	}
	// Chunked submissions stay small (≤10 distinct tracks), so a query
	// per id inside the transaction beats building dynamic IN lists.
	for _, id := range trackIDs {
		if _, done := out[id]; done {
			continue
		}
		t, err := c.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, nil
}

func (c *sqliteCatalog) Put(ctx context.Context, t model.Track) error {
	if t.Rating == 0 {
		t.Rating = model.BaselineRating
	}
	if t.AddedAt.IsZero() {
		t.AddedAt = time.Now().UTC()
	}
	artists, err := json.Marshal(t.Artists)
	if err != nil {
		return fmt.Errorf("failed to encode artists: %w", err)
	}
	genres, err := json.Marshal(t.Genres)
	if err != nil {
		return fmt.Errorf("failed to encode genres: %w", err)
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO tracks (`+trackColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, string(artists), t.Album, string(genres), t.DurationMS, t.AddedAt,
		t.Rating, t.Confidence, t.TotalPlays, t.SkipCount, t.DownloadCount)
	return asStoreError(err)
}

func (c *sqliteCatalog) ApplyDelta(ctx context.Context, d model.TrackDelta) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE tracks SET
			rating            = rating + ?,
			rating_confidence = rating_confidence + ?,
			total_plays       = total_plays + ?,
			skip_count        = skip_count + ?,
			download_count    = download_count + ?
		WHERE track_id = ?`,
		d.RatingChange, d.Confidence, d.TotalPlays, d.SkipCount, d.DownloadCount, d.TrackID)
	if err != nil {
		return asStoreError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return asStoreError(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, d.TrackID)
	}
	return nil
}

func (c *sqliteCatalog) ApplyDeltas(ctx context.Context, ds []model.TrackDelta) error {
	for _, d := range ds {
		if err := c.ApplyDelta(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (c *sqliteCatalog) List(ctx context.Context) ([]model.Track, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks`)
	if err != nil {
		return nil, asStoreError(err)
	}
	defer rows.Close()
	return collectTracks(rows)
}

func (c *sqliteCatalog) Search(ctx context.Context, q string, offset, limit int) ([]model.Track, int, error) {
	if limit <= 0 {
		return nil, 0, ErrInvalidLimit
	}
	pattern := "%" + q + "%"
	where := `WHERE title LIKE ? OR artists LIKE ? OR album LIKE ?`

	var total int
	if err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracks `+where, pattern, pattern, pattern).Scan(&total); err != nil {
		return nil, 0, asStoreError(err)
	}

	rows, err := c.q.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks `+where+`
		 ORDER BY added_at DESC LIMIT ? OFFSET ?`,
		pattern, pattern, pattern, limit, offset)
	if err != nil {
		return nil, 0, asStoreError(err)
	}
	defer rows.Close()
	tracks, err := collectTracks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tracks, total, nil
}

// rowScanner lets scanTrack serve both Row and Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(r rowScanner) (model.Track, error) {
	var (
		t       model.Track
		artists string
		genres  string
	)
	err := r.Scan(&t.ID, &t.Title, &artists, &t.Album, &genres, &t.DurationMS, &t.AddedAt,
		&t.Rating, &t.Confidence, &t.TotalPlays, &t.SkipCount, &t.DownloadCount)
	if err != nil {
		return model.Track{}, err
	}
	if err := json.Unmarshal([]byte(artists), &t.Artists); err != nil {
		return model.Track{}, fmt.Errorf("failed to decode artists: %w", err)
	}
	if err := json.Unmarshal([]byte(genres), &t.Genres); err != nil {
		return model.Track{}, fmt.Errorf("failed to decode genres: %w", err)
	}
	return t, nil
}

func collectTracks(rows *sql.Rows) ([]model.Track, error) {
	var out []model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, asStoreError(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, asStoreError(err)
	}
	return out, nil
}

// ---- ledger ----

type sqliteLedger struct {
	q querier
}

func (l *sqliteLedger) Append(ctx context.Context, ev model.RatingEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := l.q.ExecContext(ctx, `
		INSERT INTO rating_events
			(track_id, old_rating, new_rating, event_type, rating_change, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.TrackID, ev.OldRating, ev.NewRating, string(ev.Kind), ev.Change, ev.Confidence, ev.CreatedAt)
	return asStoreError(err)
}

func (l *sqliteLedger) AppendMany(ctx context.Context, evs []model.RatingEvent) error {
	for _, ev := range evs {
		if err := l.Append(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (l *sqliteLedger) RecentByTrack(ctx context.Context, trackID string, limit int) ([]model.RatingEvent, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := l.q.QueryContext(ctx, `
		SELECT track_id, old_rating, new_rating, event_type, rating_change, confidence, created_at
		FROM rating_events WHERE track_id = ?
		ORDER BY id DESC LIMIT ?`, trackID, limit)
	if err != nil {
		return nil, asStoreError(err)
	}
	defer rows.Close()

	var out []model.RatingEvent
	for rows.Next() {
		var (
			ev   model.RatingEvent
			kind string
		)
		if err := rows.Scan(&ev.TrackID, &ev.OldRating, &ev.NewRating, &kind,
			&ev.Change, &ev.Confidence, &ev.CreatedAt); err != nil {
			return nil, asStoreError(err)
		}
		ev.Kind = model.EventKind(kind)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, asStoreError(err)
	}
	return out, nil
}

func (l *sqliteLedger) StatsByTrack(ctx context.Context, trackID string) (LedgerStats, error) {
	var s LedgerStats
	err := l.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(MAX(rating_change), 0),
			COALESCE(MIN(rating_change), 0),
			COALESCE(SUM(event_type = 'play'), 0),
			COALESCE(SUM(event_type = 'skip'), 0),
			COALESCE(SUM(event_type = 'download'), 0)
		FROM rating_events WHERE track_id = ?`, trackID).
		Scan(&s.TotalChanges, &s.BiggestGain, &s.BiggestLoss, &s.Plays, &s.Skips, &s.Downloads)
	if err != nil {
		return LedgerStats{}, asStoreError(err)
	}
	if s.TotalChanges == 0 {
		// MAX/MIN coalesce to 0 on an empty ledger already; keep the
		// zero-value shape explicit.
		return LedgerStats{}, nil
	}
	return s, nil
}

// ---- history ----

type sqliteHistory struct {
	q querier
}

// AppendPlays implements find-or-create-then-append: the bucket is read
// once, extended in memory, and written back once.
func (h *sqliteHistory) AppendPlays(ctx context.Context, userID, yearMonth string, entries []model.PlayEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var raw string
	err := h.q.QueryRowContext(ctx,
		`SELECT plays FROM play_history WHERE user_id = ? AND year_month = ?`,
		userID, yearMonth).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		raw = "[]"
	case err != nil:
		return asStoreError(err)
	}

	var plays []model.PlayEntry
	if err := json.Unmarshal([]byte(raw), &plays); err != nil {
		return fmt.Errorf("failed to decode history bucket: %w", err)
	}
	plays = append(plays, entries...)

	encoded, err := json.Marshal(plays)
	if err != nil {
		return fmt.Errorf("failed to encode history bucket: %w", err)
	}
	_, err = h.q.ExecContext(ctx, `
		INSERT INTO play_history (user_id, year_month, plays) VALUES (?, ?, ?)
		ON CONFLICT(user_id, year_month) DO UPDATE SET plays = excluded.plays`,
		userID, yearMonth, string(encoded))
	return asStoreError(err)
}
