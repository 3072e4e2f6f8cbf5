package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
)

// MemoryStores implements Stores entirely in memory. It mirrors the
// SQLite semantics (delta application, find-or-create buckets, rollback
// on transaction failure) and backs the unit tests.
type MemoryStores struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	tracks  map[string]model.Track
	ledger  []model.RatingEvent
	history map[string][]model.PlayEntry // key: userID + "/" + yearMonth
}

// NewMemoryStores creates an empty in-memory store bundle.
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{state: &memState{
		tracks:  make(map[string]model.Track),
		history: make(map[string][]model.PlayEntry),
	}}
}

func (m *MemoryStores) Catalog() Catalog { return &memCatalog{m: m} }
func (m *MemoryStores) Ledger() Ledger   { return &memLedger{m: m} }
func (m *MemoryStores) History() History { return &memHistory{m: m} }

// WithinTx runs fn against a cloned state and swaps the clone in only on
// success, giving the same commit-or-nothing behavior as the SQLite
// implementation.
func (m *MemoryStores) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	staged := &MemoryStores{state: m.state.clone()}
	if err := fn(ctx, &memTx{staged: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	m.state = staged.state
	return nil
}

func (m *MemoryStores) Close() error { return nil }

func (s *memState) clone() *memState {
	c := &memState{
		tracks:  make(map[string]model.Track, len(s.tracks)),
		ledger:  append([]model.RatingEvent(nil), s.ledger...),
		history: make(map[string][]model.PlayEntry, len(s.history)),
	}
	for id, t := range s.tracks {
		c.tracks[id] = t
	}
	for k, v := range s.history {
		c.history[k] = append([]model.PlayEntry(nil), v...)
	}
	return c
}

// memTx wraps a staged clone; its stores mutate the clone without
// re-locking the parent.
type memTx struct {
	staged *MemoryStores
}

func (t *memTx) Catalog() Catalog { return &memCatalog{m: t.staged, unlocked: true} }
func (t *memTx) Ledger() Ledger   { return &memLedger{m: t.staged, unlocked: true} }
func (t *memTx) History() History { return &memHistory{m: t.staged, unlocked: true} }
func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	return fn(ctx, t)
}
func (t *memTx) Close() error { return nil }

// ---- catalog ----

type memCatalog struct {
	m        *MemoryStores
	unlocked bool // true inside a transaction, parent lock already held
}

func (c *memCatalog) lock() func() {
	if c.unlocked {
		return func() {}
	}
	c.m.mu.Lock()
	return c.m.mu.Unlock
}

func (c *memCatalog) rlock() func() {
	if c.unlocked {
		return func() {}
	}
	c.m.mu.RLock()
	return c.m.mu.RUnlock
}

func (c *memCatalog) Get(_ context.Context, trackID string) (model.Track, error) {
	defer c.rlock()()
	t, ok := c.m.state.tracks[trackID]
	if !ok {
		return model.Track{}, fmt.Errorf("%w: %s", ErrNotFound, trackID)
	}
	return t, nil
}

func (c *memCatalog) GetMany(_ context.Context, trackIDs []string) (map[string]model.Track, error) {
	defer c.rlock()()
	out := make(map[string]model.Track, len(trackIDs))
	for _, id := range trackIDs {
		if t, ok := c.m.state.tracks[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (c *memCatalog) Put(_ context.Context, t model.Track) error {
	defer c.lock()()
	if t.Rating == 0 {
		t.Rating = model.BaselineRating
	}
	if t.AddedAt.IsZero() {
		t.AddedAt = time.Now().UTC()
	}
	c.m.state.tracks[t.ID] = t
	return nil
}

func (c *memCatalog) ApplyDelta(_ context.Context, d model.TrackDelta) error {
	defer c.lock()()
	return c.applyLocked(d)
}

func (c *memCatalog) ApplyDeltas(_ context.Context, ds []model.TrackDelta) error {
	defer c.lock()()
	for _, d := range ds {
		if err := c.applyLocked(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *memCatalog) applyLocked(d model.TrackDelta) error {
	t, ok := c.m.state.tracks[d.TrackID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, d.TrackID)
	}
	t.Rating += d.RatingChange
	t.Confidence += d.Confidence
	t.TotalPlays += d.TotalPlays
	t.SkipCount += d.SkipCount
	t.DownloadCount += d.DownloadCount
	c.m.state.tracks[d.TrackID] = t
	return nil
}

func (c *memCatalog) List(_ context.Context) ([]model.Track, error) {
	defer c.rlock()()
	out := make([]model.Track, 0, len(c.m.state.tracks))
	for _, t := range c.m.state.tracks {
		out = append(out, t)
	}
	return out, nil
}

func (c *memCatalog) Search(_ context.Context, q string, offset, limit int) ([]model.Track, int, error) {
	if limit <= 0 {
		return nil, 0, ErrInvalidLimit
	}
	defer c.rlock()()

	needle := strings.ToLower(q)
	var matched []model.Track
	for _, t := range c.m.state.tracks {
		if needle == "" || matchesTrack(t, needle) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].AddedAt.After(matched[j].AddedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func matchesTrack(t model.Track, needle string) bool {
	if strings.Contains(strings.ToLower(t.Title), needle) ||
		strings.Contains(strings.ToLower(t.Album), needle) {
		return true
	}
	for _, a := range t.Artists {
		if strings.Contains(strings.ToLower(a), needle) {
			return true
		}
	}
	return false
}

// ---- ledger ----

type memLedger struct {
	m        *MemoryStores
	unlocked bool
}

func (l *memLedger) lock() func() {
	if l.unlocked {
		return func() {}
	}
	l.m.mu.Lock()
	return l.m.mu.Unlock
}

func (l *memLedger) rlock() func() {
	if l.unlocked {
		return func() {}
	}
	l.m.mu.RLock()
	return l.m.mu.RUnlock
}

func (l *memLedger) Append(_ context.Context, ev model.RatingEvent) error {
	defer l.lock()()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	l.m.state.ledger = append(l.m.state.ledger, ev)
	return nil
}

func (l *memLedger) AppendMany(ctx context.Context, evs []model.RatingEvent) error {
	for _, ev := range evs {
		if err := l.Append(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (l *memLedger) RecentByTrack(_ context.Context, trackID string, limit int) ([]model.RatingEvent, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	defer l.rlock()()

	var out []model.RatingEvent
	// Ledger is append-ordered; walk backwards for newest-first.
	for i := len(l.m.state.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if l.m.state.ledger[i].TrackID == trackID {
			out = append(out, l.m.state.ledger[i])
		}
	}
	return out, nil
}

func (l *memLedger) StatsByTrack(_ context.Context, trackID string) (LedgerStats, error) {
	defer l.rlock()()

	var s LedgerStats
	for _, ev := range l.m.state.ledger {
		if ev.TrackID != trackID {
			continue
		}
		if s.TotalChanges == 0 || ev.Change > s.BiggestGain {
			s.BiggestGain = ev.Change
		}
		if s.TotalChanges == 0 || ev.Change < s.BiggestLoss {
			s.BiggestLoss = ev.Change
		}
		s.TotalChanges++
		switch ev.Kind {
		case model.KindPlay:
			s.Plays++
		case model.KindSkip:
			s.Skips++
		case model.KindDownload:
			s.Downloads++
		}
	}
	return s, nil
}

// ---- history ----

type memHistory struct {
	m        *MemoryStores
	unlocked bool
}

func (h *memHistory) AppendPlays(_ context.Context, userID, yearMonth string, entries []model.PlayEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if !h.unlocked {
		h.m.mu.Lock()
		defer h.m.mu.Unlock()
	}
	key := userID + "/" + yearMonth
	h.m.state.history[key] = append(h.m.state.history[key], entries...)
	return nil
}

// Bucket returns a copy of one (user, month) bucket. Test helper.
func (m *MemoryStores) Bucket(userID, yearMonth string) []model.PlayEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.PlayEntry(nil), m.state.history[userID+"/"+yearMonth]...)
}
