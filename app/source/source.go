package source

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrAlreadyWatched    = errors.New("item already confirmed as watched")
	ErrInvalidTransition = errors.New("invalid approval transition")
)

func New(id, name string, now time.Time) *Source {
	return &Source{
		ID:            id,
		Name:          name,
		Enabled:       true,
		FirstSeenAt:   now,
		ApprovalState: StateTracking,
	}
}

func (s *Source) HasWatched(itemID string) bool {
	return slices.Contains(s.WatchedItemIDs, itemID)
}

func (s *Source) IsApproved() bool {
	return s.ApprovalState == StateApproved
}

// LastWatchAt returns the time of the latest confirmed watch, zero if none.
func (s *Source) LastWatchAt() time.Time {
	if s.LastItem != nil {
		return s.LastItem.Timestamp
	}
	if n := len(s.WatchHistory); n > 0 {
		return s.WatchHistory[n-1]
	}
	return time.Time{}
}

// RecordWatch merges a confirmation into the aggregate. A repeated item id is rejected
// with ErrAlreadyWatched and leaves the source untouched.
func (s *Source) RecordWatch(ev WatchConfirmed, limits Limits) error {
	if ev.ItemID == "" {
		return fmt.Errorf("confirmation for source %s has no item id", s.ID)
	}
	if s.HasWatched(ev.ItemID) {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyWatched, s.ID, ev.ItemID)
	}

	at := ev.ConfirmedAt
	if prev := s.LastWatchAt(); !prev.IsZero() && !sameDay(prev, at) {
		s.ReturnVisits++
	}

	if s.Name == "" && ev.SourceName != "" {
		s.Name = ev.SourceName
	}

	s.WatchedItemIDs = appendBounded(s.WatchedItemIDs, ev.ItemID, limits.WatchedCap)
	s.WatchHistory = appendBounded(s.WatchHistory, at, limits.HistoryCap)
	s.WatchCount++
	s.LastItem = &Item{ID: ev.ItemID, Title: ev.ItemTitle, Timestamp: at}

	s.Patterns.WatchHours = addToSet(s.Patterns.WatchHours, at.Hour())
	s.Patterns.WatchDays = addToSet(s.Patterns.WatchDays, int(at.Weekday()))
	n := float64(s.Patterns.SessionCount)
	s.Patterns.AverageWatchPercentage = (s.Patterns.AverageWatchPercentage*n + clampPercent(ev.WatchPercentage)) / (n + 1)
	s.Patterns.SessionCount++

	if s.ApprovalState == StateTracking && limits.ReadyThreshold > 0 && s.WatchCount >= limits.ReadyThreshold {
		s.ApprovalState = StateReady
	}

	return nil
}

// Approve and Deny are the only user-driven transitions and require the ready state.
func (s *Source) Approve(now time.Time) error {
	if s.ApprovalState != StateReady {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.ApprovalState, StateApproved)
	}
	s.ApprovalState = StateApproved
	s.ApprovedAt = &now
	return nil
}

func (s *Source) Deny() error {
	if s.ApprovalState != StateReady {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.ApprovalState, StateDenied)
	}
	s.ApprovalState = StateDenied
	return nil
}

func (s *Source) SetRelationship(score int, trend, badge string, at time.Time) {
	s.Relationship = Relationship{
		Score:             score,
		Trend:             trend,
		Badge:             badge,
		LastScoreUpdateAt: &at,
	}
}

func appendBounded[T any](list []T, v T, limit int) []T {
	list = append(list, v)
	if limit > 0 && len(list) > limit {
		list = slices.Clone(list[len(list)-limit:])
	}
	return list
}

func addToSet(set []int, v int) []int {
	i, found := slices.BinarySearch(set, v)
	if found {
		return set
	}
	return slices.Insert(set, i, v)
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
