package idea

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kokistudios/ideas/internal/kv"
	"github.com/kokistudios/ideas/internal/seed"
	"github.com/kokistudios/ideas/internal/store"
)

var fooSeed = seed.StaticSource{
	{Title: "Foo", Slug: "foo", Note: "a <b>plain</b> note"},
	{Title: "Bar baz", Description: "from description"},
	{},
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("user-%d", n)
	}
}

func setupStore(t *testing.T, src seed.Source) (*Store, *kv.MemoryStorage) {
	t.Helper()
	mem := kv.NewMemoryStorage()
	return NewStore(mem, src, WithClock(tickingClock()), WithIDGenerator(counterIDs())), mem
}

func ids(ideas []Idea) []string {
	out := make([]string, len(ideas))
	for i, it := range ideas {
		out[i] = it.ID
	}
	return out
}

func find(ideas []Idea, id string) (Idea, bool) {
	for _, it := range ideas {
		if it.ID == id {
			return it, true
		}
	}
	return Idea{}, false
}

func TestSeedID(t *testing.T) {
	cases := []struct {
		index int
		r     seed.Record
		want  string
	}{
		{0, seed.Record{Title: "Foo", Slug: "foo"}, "seed-0-foo"},
		{1, seed.Record{Title: "Bar baz"}, "seed-1-Bar baz"},
		{2, seed.Record{}, "seed-2-2"},
	}
	for _, tc := range cases {
		if got := SeedID(tc.index, tc.r); got != tc.want {
			t.Errorf("SeedID(%d, %+v) = %q, want %q", tc.index, tc.r, got, tc.want)
		}
	}
}

func TestFromSeed(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	recs, _ := fooSeed.Records(context.Background())
	got := FromSeed(recs, now)
	if len(got) != 3 {
		t.Fatalf("expected 3 seed ideas, got %d", len(got))
	}
	if got[0].Note != "a &lt;b&gt;plain&lt;/b&gt; note" {
		t.Errorf("seed note should be escaped, got %q", got[0].Note)
	}
	if got[1].Note != "from description" {
		t.Errorf("expected description fallback, got %q", got[1].Note)
	}
	if got[2].Title != "" || got[2].Note != "" {
		t.Errorf("empty record should map to empty idea, got %+v", got[2])
	}
	for _, it := range got {
		if !it.Created.Equal(now) {
			t.Errorf("seed %s created = %v, want load time", it.ID, it.Created)
		}
	}
}

func TestLoadAll_SeedsOnly(t *testing.T) {
	s, _ := setupStore(t, fooSeed)
	all := s.LoadAll(context.Background())
	want := []string{"seed-0-foo", "seed-1-Bar baz", "seed-2-2"}
	if fmt.Sprint(ids(all)) != fmt.Sprint(want) {
		t.Errorf("LoadAll ids = %v, want %v", ids(all), want)
	}
}

func TestScenario_DeleteSeedThenCreate(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)

	s.Delete(ctx, "seed-0-foo")
	if _, ok := find(s.LoadAll(ctx), "seed-0-foo"); ok {
		t.Fatal("deleted seed should not be visible")
	}
	deleted, _ := s.DeletedIDs(ctx)
	if len(deleted) != 1 || deleted[0] != "seed-0-foo" {
		t.Errorf("expected seed id in deleted set, got %v", deleted)
	}

	created := s.Create(ctx, "Bar", "<p>hi</p>")
	if created.ID == "" || IsSeedID(created.ID) {
		t.Errorf("expected a fresh non-seed id, got %q", created.ID)
	}
	got, ok := find(s.LoadAll(ctx), created.ID)
	if !ok {
		t.Fatal("created idea should be visible")
	}
	if got.Title != "Bar" || got.Note != "<p>hi</p>" {
		t.Errorf("unexpected created idea: %+v", got)
	}
	if _, ok := find(s.LoadAll(ctx), "seed-0-foo"); ok {
		t.Error("deleted seed must stay suppressed after further mutations")
	}
}

func TestScenario_UpdateSeedCreatesOverride(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)

	updated := s.Update(ctx, "seed-0-foo", "Foo2", "<p>edited</p>")
	if updated.ID != "seed-0-foo" {
		t.Errorf("override must keep the seed id, got %q", updated.ID)
	}

	stored, _ := s.Stored(ctx)
	if len(stored) != 1 || stored[0].ID != "seed-0-foo" || stored[0].Title != "Foo2" {
		t.Fatalf("expected one stored override, got %+v", stored)
	}

	all := s.LoadAll(ctx)
	if len(all) != 3 {
		t.Errorf("override must not duplicate the seed, got %v", ids(all))
	}
	got, _ := find(all, "seed-0-foo")
	if got.Title != "Foo2" || got.Note != "<p>edited</p>" {
		t.Errorf("expected override content, got %+v", got)
	}
	if all[0].ID != "seed-0-foo" {
		t.Errorf("override should replace the seed in place, got order %v", ids(all))
	}
}

func TestUpdate_StoredInPlace(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, nil)

	a := s.Create(ctx, "A", "")
	b := s.Create(ctx, "B", "")
	updated := s.Update(ctx, a.ID, "A2", "<p>new</p>")

	stored, _ := s.Stored(ctx)
	if len(stored) != 2 {
		t.Fatalf("update must not append for an existing stored id, got %d entries", len(stored))
	}
	if stored[0].ID != a.ID || stored[0].Title != "A2" || stored[1].ID != b.ID {
		t.Errorf("expected in-place replacement, got %+v", stored)
	}
	if !updated.Created.After(b.Created) {
		t.Errorf("update should refresh created: %v vs %v", updated.Created, b.Created)
	}
}

func TestDelete_StoredIdea(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)

	it := s.Create(ctx, "Temp", "")
	s.Delete(ctx, it.ID)

	if _, ok := find(s.LoadAll(ctx), it.ID); ok {
		t.Error("deleted stored idea should be gone")
	}
	deleted, _ := s.DeletedIDs(ctx)
	if len(deleted) != 0 {
		t.Errorf("deleting a user idea must not touch the deleted set, got %v", deleted)
	}
}

func TestDelete_EditedSeedStaysGone(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)

	s.Update(ctx, "seed-0-foo", "Foo2", "")
	s.Delete(ctx, "seed-0-foo")

	if it, ok := find(s.LoadAll(ctx), "seed-0-foo"); ok {
		t.Errorf("deleting an edited seed must not resurrect the original, got %+v", it)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)

	s.Delete(ctx, "seed-1-Bar baz")
	s.Delete(ctx, "seed-1-Bar baz")
	deleted, _ := s.DeletedIDs(ctx)
	if len(deleted) != 1 {
		t.Errorf("deleted set should not hold duplicates, got %v", deleted)
	}
}

func TestDeletedSeedSurvivesNewStore(t *testing.T) {
	ctx := context.Background()
	s, mem := setupStore(t, fooSeed)
	s.Delete(ctx, "seed-0-foo")

	fresh := NewStore(mem, fooSeed)
	if _, ok := find(fresh.LoadAll(ctx), "seed-0-foo"); ok {
		t.Error("suppression must survive re-deriving seeds in a new store")
	}
}

func TestLoadAll_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)
	s.Create(ctx, "One", "<p>1</p>")
	s.Update(ctx, "seed-1-Bar baz", "Edited", "")

	first := s.LoadAll(ctx)
	second := s.LoadAll(ctx)
	if len(first) != len(second) {
		t.Fatalf("LoadAll lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.ID != b.ID || a.Title != b.Title || a.Note != b.Note {
			t.Errorf("LoadAll not idempotent at %d: %+v vs %+v", i, a, b)
		}
	}
}

func TestLoadAll_UniqueIDsUnderRandomOps(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 300; step++ {
		all := s.LoadAll(ctx)
		switch op := rng.Intn(3); {
		case op == 0 || len(all) == 0:
			s.Create(ctx, fmt.Sprintf("idea %d", step), "")
		case op == 1:
			target := all[rng.Intn(len(all))]
			s.Update(ctx, target.ID, target.Title+"!", target.Note)
		default:
			s.Delete(ctx, all[rng.Intn(len(all))].ID)
		}

		seen := map[string]bool{}
		for _, it := range s.LoadAll(ctx) {
			if seen[it.ID] {
				t.Fatalf("step %d: duplicate id %s in merged view", step, it.ID)
			}
			seen[it.ID] = true
		}
	}
}

func TestLoadAll_UnavailableSeed(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, seed.FileSource("/nonexistent/ideas.json"))
	it := s.Create(ctx, "Still works", "")

	all := s.LoadAll(ctx)
	if len(all) != 1 || all[0].ID != it.ID {
		t.Errorf("missing seed should degrade to stored ideas only, got %v", ids(all))
	}
	if _, err := s.Seeds(ctx); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestLoadAll_CorruptStorage(t *testing.T) {
	ctx := context.Background()
	s, mem := setupStore(t, fooSeed)
	mem.Set(ctx, store.KeyStoredIdeas, "{definitely not an array")
	mem.Set(ctx, store.KeyDeletedIDs, `["seed-0-foo"`)

	all := s.LoadAll(ctx)
	if len(all) != 3 {
		t.Errorf("corrupt sources should read as empty, got %v", ids(all))
	}
	if _, err := s.Stored(ctx); !errors.Is(err, ErrStorageUnreadable) {
		t.Errorf("expected ErrStorageUnreadable, got %v", err)
	}

	// A mutation over corrupt storage starts a fresh collection.
	it := s.Create(ctx, "Fresh", "")
	stored, err := s.Stored(ctx)
	if err != nil || len(stored) != 1 || stored[0].ID != it.ID {
		t.Errorf("expected fresh collection after create, got %+v, %v", stored, err)
	}
}

func TestWriteFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	s, mem := setupStore(t, fooSeed)

	var hooked []string
	s.OnWriteError = func(key string, err error) { hooked = append(hooked, key) }
	mem.FailWrites = kv.ErrQuotaExceeded

	it := s.Create(ctx, "Unsaved", "")
	if it.ID == "" || it.Title != "Unsaved" {
		t.Fatalf("create should still succeed, got %+v", it)
	}
	if err := s.LastWriteError(); !errors.Is(err, ErrStorageWriteFailed) {
		t.Errorf("expected ErrStorageWriteFailed on side channel, got %v", err)
	}
	if len(hooked) != 1 || hooked[0] != store.KeyStoredIdeas {
		t.Errorf("expected hook for %s, got %v", store.KeyStoredIdeas, hooked)
	}
	if _, ok := find(s.LoadAll(ctx), it.ID); !ok {
		t.Error("the session should still see an unsaved idea")
	}
	if _, ok, _ := mem.Get(ctx, store.KeyStoredIdeas); ok {
		t.Error("nothing should have reached storage")
	}

	mem.FailWrites = nil
	s.Delete(ctx, "seed-0-foo")
	if err := s.LastWriteError(); err != nil {
		t.Errorf("successful write should clear the side channel, got %v", err)
	}
	s.Create(ctx, "Saved", "")
	raw, ok, _ := mem.Get(ctx, store.KeyStoredIdeas)
	if !ok {
		t.Fatal("expected stored ideas to be persisted once writes recover")
	}
	fresh := NewStore(mem, fooSeed)
	if _, ok := find(fresh.LoadAll(ctx), it.ID); !ok {
		t.Errorf("pending idea should be flushed by the next successful write, storage = %s", raw)
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)

	it, err := s.Get(ctx, "seed-0-foo")
	if err != nil || it.Title != "Foo" {
		t.Errorf("Get(seed-0-foo) = %+v, %v", it, err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSortNewestFirst(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)
	in := []Idea{
		{ID: "b", Created: t2},
		{ID: "a", Created: t1},
		{ID: "c", Created: t3},
		{ID: "c2", Created: t3},
	}
	got := ids(SortNewestFirst(in))
	want := []string{"c", "c2", "b", "a"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("SortNewestFirst = %v, want %v", got, want)
	}
	if in[0].ID != "b" {
		t.Error("SortNewestFirst must not reorder its input")
	}
}

func TestOrderingAfterLoadAll(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, nil)
	first := s.Create(ctx, "T1", "")
	second := s.Create(ctx, "T2", "")
	third := s.Create(ctx, "T3", "")

	got := ids(SortNewestFirst(s.LoadAll(ctx)))
	want := []string{third.ID, second.ID, first.ID}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("render order = %v, want %v", got, want)
	}
}

func TestDefaultIDsAreUnique(t *testing.T) {
	s := NewStore(kv.NewMemoryStorage(), nil)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		it := s.Create(context.Background(), "x", "")
		if seen[it.ID] {
			t.Fatalf("duplicate generated id %s", it.ID)
		}
		if IsSeedID(it.ID) {
			t.Fatalf("generated id %s collides with the seed namespace", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)
	mine := s.Create(ctx, "Mine", "")

	added, replaced, suppressed := s.Merge(ctx,
		[]Idea{
			{ID: mine.ID, Title: "Mine, imported"},
			{ID: "other-1", Title: "Theirs"},
			{ID: "", Title: "dropped"},
		},
		[]string{"seed-0-foo", "seed-0-foo", ""},
	)
	if added != 1 || replaced != 1 || suppressed != 1 {
		t.Fatalf("Merge counts = %d/%d/%d, want 1/1/1", added, replaced, suppressed)
	}

	all := s.LoadAll(ctx)
	if _, ok := find(all, "seed-0-foo"); ok {
		t.Error("imported deleted id should suppress the seed")
	}
	if got, _ := find(all, mine.ID); got.Title != "Mine, imported" {
		t.Errorf("existing idea should be replaced, got %q", got.Title)
	}
	if _, ok := find(all, "other-1"); !ok {
		t.Error("new idea should be added")
	}

	// Merging the same payload again adds nothing new.
	_, _, suppressed = s.Merge(ctx, nil, []string{"seed-0-foo"})
	if suppressed != 0 {
		t.Errorf("re-merging a known deleted id should be a no-op, got %d", suppressed)
	}
}

// slowStorage widens the window between reading and writing a collection.
type slowStorage struct {
	*kv.MemoryStorage
}

func (s slowStorage) Get(ctx context.Context, key string) (string, bool, error) {
	time.Sleep(time.Millisecond)
	return s.MemoryStorage.Get(ctx, key)
}

func TestConcurrentMutationsKeepEveryIdea(t *testing.T) {
	ctx := context.Background()
	s := NewStore(slowStorage{kv.NewMemoryStorage()}, fooSeed)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Create(ctx, fmt.Sprintf("idea %d", i), "")
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Delete(ctx, "seed-0-foo")
	}()
	wg.Wait()

	stored, err := s.Stored(ctx)
	if err != nil {
		t.Fatalf("Stored: %v", err)
	}
	if len(stored) != n {
		t.Errorf("concurrent creates lost ideas: want %d, got %d", n, len(stored))
	}
	if deleted, _ := s.DeletedIDs(ctx); len(deleted) != 1 {
		t.Errorf("expected the deleted seed to be recorded, got %v", deleted)
	}
}

func TestMutationsSkipWriteOnReadFailure(t *testing.T) {
	ctx := context.Background()
	s, mem := setupStore(t, fooSeed)
	for i := 0; i < 3; i++ {
		s.Create(ctx, fmt.Sprintf("kept %d", i), "")
	}

	var hooked []string
	s.OnWriteError = func(key string, err error) { hooked = append(hooked, key) }
	mem.FailReads = errors.New("connection reset")

	if it := s.Create(ctx, "during outage", ""); it.Title != "during outage" {
		t.Errorf("create should still return the idea, got %+v", it)
	}
	s.Update(ctx, "user-1", "changed during outage", "")
	s.Delete(ctx, "user-2")
	s.Merge(ctx, []Idea{{ID: "other", Title: "Theirs"}}, []string{"seed-0-foo"})

	if err := s.LastWriteError(); !errors.Is(err, ErrStorageReadFailed) {
		t.Errorf("expected ErrStorageReadFailed on side channel, got %v", err)
	}
	if len(hooked) != 4 {
		t.Errorf("expected one hook call per skipped mutation, got %v", hooked)
	}

	mem.FailReads = nil
	stored, err := s.Stored(ctx)
	if err != nil {
		t.Fatalf("Stored: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("a failed read must not overwrite stored ideas: want 3, got %d", len(stored))
	}
	if got, _ := find(stored, "user-1"); got.Title != "kept 0" {
		t.Errorf("update during outage should not be written, got %q", got.Title)
	}
	if deleted, _ := s.DeletedIDs(ctx); len(deleted) != 0 {
		t.Errorf("merge during outage should not suppress seeds, got %v", deleted)
	}
}

func TestMerge_SanitizesNotes(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t, fooSeed)

	s.Merge(ctx, []Idea{{
		ID:    "imported",
		Title: "Hostile",
		Note:  `<img src=x onerror="alert(1)"><script>steal()</script><b>ok</b>`,
	}}, nil)

	it, err := s.Get(ctx, "imported")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, bad := range []string{"<script", "onerror", "steal()"} {
		if strings.Contains(it.Note, bad) {
			t.Errorf("imported note kept %q: %s", bad, it.Note)
		}
	}
	if !strings.Contains(it.Note, "<b>ok</b>") {
		t.Errorf("safe markup should survive, got %s", it.Note)
	}
}
