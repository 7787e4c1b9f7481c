package score

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/lysyi3m/tubewatch/app/metrics"
	"github.com/lysyi3m/tubewatch/app/source"
	"github.com/lysyi3m/tubewatch/app/timer"
)

type Store interface {
	GetSource(ctx context.Context, id string) (*source.Source, error)
	UpsertSource(ctx context.Context, id string, mutate func(*source.Source) error) (*source.Source, error)
	ListSources(ctx context.Context) ([]*source.Source, error)
}

type Confirmer interface {
	ConfirmWatch(ctx context.Context, ev source.WatchConfirmed) error
}

type Match struct {
	Source     *source.Source `json:"source"`
	Similarity float64        `json:"similarity"`
}

// Service computes relationship scores lazily and caches them per source. A result
// computed while the source was invalidated is returned but never cached.
type Service struct {
	engine *Engine
	cache  Cache
	store  Store
	clock  timer.Clock

	mu          sync.Mutex
	generations map[string]uint64 // bumped by Invalidate
}

func NewService(engine *Engine, cache Cache, store Store, clock timer.Clock) *Service {
	return &Service{
		engine: engine,
		cache:  cache,
		store:  store,
		clock:       clock,
		generations: make(map[string]uint64),
	}
}

// Relationship returns the cached result or computes, persists and caches a fresh one.
func (s *Service) Relationship(ctx context.Context, sourceID string) (Result, error) {
	cached, ok, err := s.cache.Get(ctx, sourceID)
	if err != nil {
		slog.Warn("Score cache read failed, recomputing", "source", sourceID, "error", err)
	}
	if ok {
		metrics.ScoreCache.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.ScoreCache.WithLabelValues("miss").Inc()

	gen := s.generation(sourceID)
	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load source %s: %w", sourceID, err)
	}

	now := s.clock.Now()
	r := s.engine.Compute(SnapshotOf(src), now)
	if r.Fallback && src.WatchCount > 0 {
		metrics.InvariantViolations.WithLabelValues("incomplete_snapshot").Inc()
		slog.Error("Score computed on incomplete snapshot, using fallback", "source", sourceID, "count", src.WatchCount)
	}

	computedFrom := src.WatchCount
	_, err = s.store.UpsertSource(ctx, sourceID, func(stored *source.Source) error {
		if stored.WatchCount == computedFrom {
			stored.SetRelationship(r.Score, r.Trend, r.Badge, now)
		}
		return nil
	})
	if err != nil {
		slog.Warn("Failed to persist relationship", "source", sourceID, "error", err)
	}

	s.mu.Lock()
	if s.generations[sourceID] == gen {
		if err := s.cache.Set(ctx, sourceID, r); err != nil {
			slog.Warn("Failed to cache relationship", "source", sourceID, "error", err)
		}
	} else {
		slog.Debug("Source changed during scoring, result not cached", "source", sourceID)
	}
	s.mu.Unlock()

	slog.Debug("Relationship computed", "source", sourceID, "score", r.Score, "badge", r.Badge, "trend", r.Trend)
	return r, nil
}

func (s *Service) Invalidate(ctx context.Context, sourceID string) {
	s.mu.Lock()
	s.generations[sourceID]++
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, sourceID); err != nil {
		slog.Warn("Failed to invalidate relationship", "source", sourceID, "error", err)
	}
}

func (s *Service) generation(sourceID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[sourceID]
}

// Similar ranks the other sources by habit similarity, best first.
func (s *Service) Similar(ctx context.Context, sourceID string, limit int) ([]Match, error) {
	target, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source %s: %w", sourceID, err)
	}
	all, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	matches := make([]Match, 0, len(all))
	for _, other := range all {
		if other.ID == target.ID {
			continue
		}
		sim := Similarity(target.Patterns, other.Patterns)
		if sim <= 0 {
			continue
		}
		matches = append(matches, Match{Source: other, Similarity: sim})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Source.ID, b.Source.ID)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// InvalidatingConfirmer drops the cached score of a source after each stored confirmation.
func (s *Service) InvalidatingConfirmer(next Confirmer) Confirmer {
	return &invalidatingConfirmer{next: next, service: s}
}

type invalidatingConfirmer struct {
	next    Confirmer
	service *Service
}

func (c *invalidatingConfirmer) ConfirmWatch(ctx context.Context, ev source.WatchConfirmed) error {
	if err := c.next.ConfirmWatch(ctx, ev); err != nil {
		return err
	}
	c.service.Invalidate(ctx, ev.SourceID)
	return nil
}
