// Package idea implements the idea board: a read-only seed collection merged
// with user edits, user-created entries, and suppressed seed ids.
//
// Three sources make up the board. Seed ideas are regenerated from the seed
// dataset on every load. Stored ideas are everything the user created or
// edited; a stored entry sharing a seed id shadows that seed. The deleted set
// records seed ids the user removed, since the seed itself cannot be changed.
// The merged view is rebuilt from those sources on every read.
package idea

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kokistudios/ideas/internal/kv"
	"github.com/kokistudios/ideas/internal/seed"
	"github.com/kokistudios/ideas/internal/store"
)

var (
	// ErrSourceUnavailable means the seed dataset could not be read.
	ErrSourceUnavailable = errors.New("seed source unavailable")
	// ErrStorageUnreadable means a persisted value could not be decoded.
	ErrStorageUnreadable = errors.New("storage unreadable")
	// ErrStorageReadFailed means the backend could not return a value.
	ErrStorageReadFailed = errors.New("storage read failed")
	// ErrStorageWriteFailed means a mutation could not be persisted.
	ErrStorageWriteFailed = errors.New("storage write failed")
	// ErrNotFound means no idea with the given id is visible.
	ErrNotFound = errors.New("idea not found")
)

// Idea is one entry on the board. Note is an HTML fragment.
type Idea struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Note    string    `json:"note"`
	Created time.Time `json:"created"`
}

// IsSeedID reports whether id has the shape of a seed-derived id.
func IsSeedID(id string) bool {
	return len(id) > 5 && id[:5] == "seed-"
}

// SeedID derives the stable id of the seed record at index.
func SeedID(index int, r seed.Record) string {
	suffix := r.Slug
	if suffix == "" {
		suffix = r.Title
	}
	if suffix == "" {
		suffix = strconv.Itoa(index)
	}
	return "seed-" + strconv.Itoa(index) + "-" + suffix
}

// FromSeed maps seed records to ideas stamped with created.
func FromSeed(records []seed.Record, created time.Time) []Idea {
	ideas := make([]Idea, 0, len(records))
	for i, r := range records {
		ideas = append(ideas, Idea{
			ID:      SeedID(i, r),
			Title:   r.Title,
			Note:    EscapeSeedNote(r.Body()),
			Created: created,
		})
	}
	return ideas
}

// Store produces the merged view and applies mutations with write-through
// persistence. Persistence is best-effort: a failed write is logged and
// recorded on LastWriteError, but the mutation still reports success.
type Store struct {
	storage kv.Storage
	seeds   seed.Source
	logger  *log.Logger
	now     func() time.Time
	newID   func() string

	// OnWriteError, if set, is called for every failed write.
	OnWriteError func(key string, err error)

	// writeMu serializes the read-modify-write of the persisted collections.
	writeMu sync.Mutex

	mu           sync.Mutex
	lastWriteErr error
	// pending holds values whose write failed, so the rest of this session
	// still sees the mutation. A later successful write to the key drops it.
	pending map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded reads and failed writes.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides fresh id generation for created ideas.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore returns a Store over storage and seeds.
func NewStore(storage kv.Storage, seeds seed.Source, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		seeds:   seeds,
		logger:  log.New(io.Discard),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   newID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seeds == nil {
		s.seeds = seed.StaticSource(nil)
	}
	return s
}

// newID returns a time-ordered UUIDv7, falling back to a random v4.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// LoadAll returns the merged view: visible seeds first, in dataset order,
// then stored ideas. A stored idea replaces the seed with the same id in
// place. No failure is fatal; an unavailable source reads as empty.
func (s *Store) LoadAll(ctx context.Context) []Idea {
	seeds, err := s.Seeds(ctx)
	if err != nil {
		s.logger.Debug("seed ideas unavailable, continuing without them", "err", err)
	}
	stored, err := s.Stored(ctx)
	if err != nil {
		s.logger.Warn("stored ideas unreadable, treating as empty", "err", err)
	}
	deleted, err := s.DeletedIDs(ctx)
	if err != nil {
		s.logger.Warn("deleted ids unreadable, treating as empty", "err", err)
	}
	return merge(seeds, stored, deleted)
}

func merge(seeds, stored []Idea, deleted []string) []Idea {
	suppressed := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		suppressed[id] = true
	}

	index := make(map[string]int, len(seeds)+len(stored))
	out := make([]Idea, 0, len(seeds)+len(stored))
	put := func(it Idea) {
		if i, ok := index[it.ID]; ok {
			out[i] = it
			return
		}
		index[it.ID] = len(out)
		out = append(out, it)
	}
	for _, it := range seeds {
		if !suppressed[it.ID] {
			put(it)
		}
	}
	for _, it := range stored {
		put(it)
	}
	return out
}

// Get returns the visible idea with id.
func (s *Store) Get(ctx context.Context, id string) (Idea, error) {
	for _, it := range s.LoadAll(ctx) {
		if it.ID == id {
			return it, nil
		}
	}
	return Idea{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Seeds returns the seed ideas, unfiltered. On error the result is empty.
func (s *Store) Seeds(ctx context.Context) ([]Idea, error) {
	records, err := s.seeds.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return FromSeed(records, s.now()), nil
}

// Stored returns the persisted user ideas. On error the result is empty.
func (s *Store) Stored(ctx context.Context) ([]Idea, error) {
	var stored []Idea
	if err := s.readJSON(ctx, store.KeyStoredIdeas, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// DeletedIDs returns the suppressed seed ids. On error the result is empty.
func (s *Store) DeletedIDs(ctx context.Context) ([]string, error) {
	var deleted []string
	if err := s.readJSON(ctx, store.KeyDeletedIDs, &deleted); err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *Store) readJSON(ctx context.Context, key string, v any) error {
	s.mu.Lock()
	raw, ok := s.pending[key]
	s.mu.Unlock()
	if !ok {
		var err error
		raw, ok, err = s.storage.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrStorageReadFailed, key, err)
		}
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageUnreadable, key, err)
	}
	return nil
}

// Create adds a new idea with a fresh id and persists it.
func (s *Store) Create(ctx context.Context, title, noteHTML string) Idea {
	it := Idea{
		ID:      s.newID(),
		Title:   title,
		Note:    noteHTML,
		Created: s.now(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	stored, err := s.Stored(ctx)
	if !s.writable(store.KeyStoredIdeas, err) {
		return it
	}
	stored = append(stored, it)
	s.persist(ctx, store.KeyStoredIdeas, stored)
	return it
}

// Update replaces the stored idea with id, or appends a stored override when
// id is only known from the seed. The created time is refreshed.
func (s *Store) Update(ctx context.Context, id, title, noteHTML string) Idea {
	it := Idea{
		ID:      id,
		Title:   title,
		Note:    noteHTML,
		Created: s.now(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	stored, err := s.Stored(ctx)
	if !s.writable(store.KeyStoredIdeas, err) {
		return it
	}
	if i := indexOf(stored, id); i >= 0 {
		stored[i] = it
	} else {
		stored = append(stored, it)
	}
	s.persist(ctx, store.KeyStoredIdeas, stored)
	return it
}

// Delete removes a stored idea, or suppresses a seed id when nothing is
// stored under id. Either way id disappears from subsequent loads. Removing
// the override of a seed idea also suppresses the seed, otherwise the
// original would resurface.
func (s *Store) Delete(ctx context.Context, id string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.Stored(ctx)
	if !s.writable(store.KeyStoredIdeas, err) {
		return
	}
	if i := indexOf(stored, id); i >= 0 {
		stored = append(stored[:i], stored[i+1:]...)
		s.persist(ctx, store.KeyStoredIdeas, stored)
		if !IsSeedID(id) {
			return
		}
	}

	deleted, err := s.DeletedIDs(ctx)
	if !s.writable(store.KeyDeletedIDs, err) {
		return
	}
	for _, d := range deleted {
		if d == id {
			return
		}
	}
	deleted = append(deleted, id)
	s.persist(ctx, store.KeyDeletedIDs, deleted)
}

// Merge upserts stored by id and unions deleted into the suppressed set.
// Incoming notes are sanitized. It reports how many ideas were added and
// replaced, and how many ids were newly suppressed.
func (s *Store) Merge(ctx context.Context, incoming []Idea, deleted []string) (added, replaced, suppressed int) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.Stored(ctx)
	if !s.writable(store.KeyStoredIdeas, err) {
		return 0, 0, 0
	}
	for _, it := range incoming {
		if it.ID == "" {
			continue
		}
		it.Note = SanitizeNote(it.Note)
		if i := indexOf(stored, it.ID); i >= 0 {
			stored[i] = it
			replaced++
		} else {
			stored = append(stored, it)
			added++
		}
	}
	if added+replaced > 0 {
		s.persist(ctx, store.KeyStoredIdeas, stored)
	}

	current, err := s.DeletedIDs(ctx)
	if !s.writable(store.KeyDeletedIDs, err) {
		return added, replaced, 0
	}
	seen := make(map[string]bool, len(current))
	for _, d := range current {
		seen[d] = true
	}
	for _, d := range deleted {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		current = append(current, d)
		suppressed++
	}
	if suppressed > 0 {
		s.persist(ctx, store.KeyDeletedIDs, current)
	}
	return added, replaced, suppressed
}

// LastWriteError returns the most recent persistence failure, or nil if the
// last write succeeded.
func (s *Store) LastWriteError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWriteErr
}

// writable reports whether a collection read with err may be rewritten. A
// value that does not decode reads as empty and is overwritten. A failed
// backend read is recorded as a failed write and nothing is written.
func (s *Store) writable(key string, err error) bool {
	if errors.Is(err, ErrStorageReadFailed) {
		s.recordWrite(key, "", err)
		return false
	}
	return true
}

func (s *Store) persist(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.recordWrite(key, "", err)
	} else {
		s.recordWrite(key, string(data), s.storage.Set(ctx, key, string(data)))
	}
}

func (s *Store) recordWrite(key, value string, err error) {
	s.mu.Lock()
	if err != nil {
		s.lastWriteErr = fmt.Errorf("%w: %s: %v", ErrStorageWriteFailed, key, err)
		if value != "" {
			if s.pending == nil {
				s.pending = map[string]string{}
			}
			s.pending[key] = value
		}
	} else {
		s.lastWriteErr = nil
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("could not save ideas", "key", key, "err", err)
		if s.OnWriteError != nil {
			s.OnWriteError(key, err)
		}
	}
}

func indexOf(ideas []Idea, id string) int {
	for i, it := range ideas {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// SortNewestFirst returns a copy of ideas ordered by Created, newest first.
// Ties keep their input order.
func SortNewestFirst(ideas []Idea) []Idea {
	sorted := make([]Idea, len(ideas))
	copy(sorted, ideas)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created.After(sorted[j].Created)
	})
	return sorted
}
