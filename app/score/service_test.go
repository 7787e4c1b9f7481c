package score

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/tubewatch/app/source"
	"github.com/lysyi3m/tubewatch/app/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

type memStore struct {
	mu      sync.Mutex
	sources map[string]*source.Source
	loads   int

	afterGet func()
}

func newMemStore(sources ...*source.Source) *memStore {
	m := &memStore{sources: make(map[string]*source.Source)}
	for _, s := range sources {
		m.sources[s.ID] = s
	}
	return m
}

func (m *memStore) GetSource(ctx context.Context, id string) (*source.Source, error) {
	m.mu.Lock()
	m.loads++
	s, ok := m.sources[id]
	hook := m.afterGet
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, errNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) UpsertSource(ctx context.Context, id string, mutate func(*source.Source) error) (*source.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		s = source.New(id, "", now)
	}
	cp := *s
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	m.sources[id] = &cp
	return &cp, nil
}

func (m *memStore) ListSources(ctx context.Context) ([]*source.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*source.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) ConfirmWatch(ctx context.Context, ev source.WatchConfirmed) error {
	_, err := m.UpsertSource(ctx, ev.SourceID, func(s *source.Source) error {
		return s.RecordWatch(ev, source.DefaultLimits())
	})
	return err
}

func watchedSource(id string, hours ...int) *source.Source {
	src := source.New(id, id, now.Add(-40*day))
	src.WatchCount = 12
	src.LastItem = &source.Item{ID: "v", Timestamp: now.Add(-12 * time.Hour)}
	src.Patterns = source.Patterns{WatchHours: hours, WatchDays: []int{1, 3}, AverageWatchPercentage: 75, SessionCount: 12}
	return src
}

func TestServiceCachesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchedSource("UC1", 20, 21))
	svc := NewService(DefaultEngine(), NewMemoryCache(16, time.Minute), store, timer.NewVirtual(now))

	r, err := svc.Relationship(ctx, "UC1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Score, 60)

	persisted := store.sources["UC1"].Relationship
	assert.Equal(t, r.Score, persisted.Score)
	assert.Equal(t, r.Badge, persisted.Badge)
	require.NotNil(t, persisted.LastScoreUpdateAt)

	loads := store.loads
	again, err := svc.Relationship(ctx, "UC1")
	require.NoError(t, err)
	assert.Equal(t, r, again)
	assert.Equal(t, loads, store.loads, "second call served from cache")
}

func TestServiceInvalidatesOnConfirm(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchedSource("UC1", 20))
	svc := NewService(DefaultEngine(), NewMemoryCache(16, time.Minute), store, timer.NewVirtual(now))

	_, err := svc.Relationship(ctx, "UC1")
	require.NoError(t, err)
	loads := store.loads

	confirmer := svc.InvalidatingConfirmer(store)
	require.NoError(t, confirmer.ConfirmWatch(ctx, source.WatchConfirmed{SourceID: "UC1", ItemID: "new", WatchPercentage: 90, ConfirmedAt: now}))

	r, err := svc.Relationship(ctx, "UC1")
	require.NoError(t, err)
	assert.Greater(t, store.loads, loads)
	assert.Equal(t, 13, store.sources["UC1"].WatchCount)
	assert.Equal(t, r.Score, store.sources["UC1"].Relationship.Score)
}

func TestServiceSkipsCachingAcrossConcurrentConfirmation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchedSource("UC1", 20))
	svc := NewService(DefaultEngine(), NewMemoryCache(16, time.Minute), store, timer.NewVirtual(now))
	confirmer := svc.InvalidatingConfirmer(store)

	store.afterGet = func() {
		store.afterGet = nil
		require.NoError(t, confirmer.ConfirmWatch(ctx, source.WatchConfirmed{SourceID: "UC1", ItemID: "new", WatchPercentage: 90, ConfirmedAt: now}))
	}

	_, err := svc.Relationship(ctx, "UC1")
	require.NoError(t, err)
	assert.Equal(t, 13, store.sources["UC1"].WatchCount)
	assert.Nil(t, store.sources["UC1"].Relationship.LastScoreUpdateAt, "result from the older snapshot not persisted")

	loads := store.loads
	fresh, err := svc.Relationship(ctx, "UC1")
	require.NoError(t, err)
	assert.Greater(t, store.loads, loads, "older result was not cached")
	assert.Equal(t, fresh.Score, store.sources["UC1"].Relationship.Score)
	require.NotNil(t, store.sources["UC1"].Relationship.LastScoreUpdateAt)
}

func TestServiceFallbackForUnwatchedSource(t *testing.T) {
	store := newMemStore(source.New("UC2", "Two", now))
	svc := NewService(DefaultEngine(), NewMemoryCache(16, time.Minute), store, timer.NewVirtual(now))

	r, err := svc.Relationship(context.Background(), "UC2")
	require.NoError(t, err)
	assert.True(t, r.Fallback)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, BadgeCasual, r.Badge)
}

func TestServiceMissingSource(t *testing.T) {
	svc := NewService(DefaultEngine(), NewMemoryCache(16, time.Minute), newMemStore(), timer.NewVirtual(now))

	_, err := svc.Relationship(context.Background(), "nope")
	assert.ErrorIs(t, err, errNotFound)
}

func TestServiceSimilar(t *testing.T) {
	store := newMemStore(
		watchedSource("UC1", 20, 21),
		watchedSource("UC2", 20, 21),
		watchedSource("UC3", 8),
		source.New("UC4", "Empty", now),
	)
	svc := NewService(DefaultEngine(), NewMemoryCache(16, time.Minute), store, timer.NewVirtual(now))

	matches, err := svc.Similar(context.Background(), "UC1", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "UC2", matches[0].Source.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Equal(t, "UC3", matches[1].Source.ID)
	assert.Less(t, matches[1].Similarity, matches[0].Similarity)
}

func TestSimilarity(t *testing.T) {
	a := source.Patterns{WatchHours: []int{1, 2}, WatchDays: []int{0}, AverageWatchPercentage: 50, SessionCount: 1}
	b := source.Patterns{WatchHours: []int{2, 3}, WatchDays: []int{0}, AverageWatchPercentage: 70, SessionCount: 1}

	assert.InDelta(t, 0.4*(1.0/3)+0.3+0.3*0.8, Similarity(a, b), 1e-9)
	assert.Equal(t, 0.0, Similarity(source.Patterns{}, source.Patterns{}))
}

func TestLikelyWatchTime(t *testing.T) {
	p := source.Patterns{WatchHours: []int{20}, WatchDays: []int{int(time.Saturday)}}

	// now is Saturday 18:00
	assert.False(t, IsLikelyWatchTime(p, now))
	assert.True(t, IsLikelyWatchTime(p, now.Add(2*time.Hour)))

	next, ok := NextLikelyWatch(p, now)
	require.True(t, ok)
	assert.Equal(t, now.Add(2*time.Hour), next)

	next, ok = NextLikelyWatch(p, now.Add(3*time.Hour))
	require.True(t, ok)
	assert.Equal(t, now.Add(2*time.Hour+7*day), next)

	_, ok = NextLikelyWatch(source.Patterns{}, now)
	assert.False(t, ok)
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityFor(Result{Score: 85}))
	assert.Equal(t, PriorityNormal, PriorityFor(Result{Score: 50}))
	assert.Equal(t, PriorityLow, PriorityFor(Result{Score: 10}))
	assert.Equal(t, PriorityNormal, PriorityFor(Result{Score: 0, Fallback: true}))
}
