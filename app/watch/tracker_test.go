package watch

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

type fakeStore struct {
	mu        sync.Mutex
	watched   map[string]bool
	confirmed []source.WatchConfirmed
	checkErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{watched: make(map[string]bool)}
}

func (f *fakeStore) ConfirmWatch(ctx context.Context, ev source.WatchConfirmed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ev.SourceID + "/" + ev.ItemID
	if f.watched[key] {
		return source.ErrAlreadyWatched
	}
	f.watched[key] = true
	f.confirmed = append(f.confirmed, ev)
	return nil
}

func (f *fakeStore) HasWatched(ctx context.Context, sourceID, itemID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.watched[sourceID+"/"+itemID], nil
}

// playAlong advances virtual time while moving the remote player in real time.
func playAlong(clock *timer.Virtual, player *RemotePlayer, seconds int) {
	for i := 0; i < seconds; i++ {
		player.Update(player.CurrentPosition()+1, 0, false)
		clock.Advance(time.Second)
	}
}

func newTestTracker(store *fakeStore) (*Tracker, *timer.Virtual) {
	clock := timer.NewVirtual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return NewTracker(context.Background(), DefaultConfig(), clock, store, store), clock
}

func TestTrackerConfirmsOnce(t *testing.T) {
	store := newFakeStore()
	tracker, clock := newTestTracker(store)
	player := NewRemotePlayer(0, 120, false)

	s, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", ItemTitle: "Hello", Player: player})
	require.NoError(t, err)
	assert.Equal(t, StateSampling, s.State)
	assert.Equal(t, 1, clock.Pending())

	playAlong(clock, player, 70)

	require.Len(t, store.confirmed, 1)
	assert.Equal(t, "v1", store.confirmed[0].ItemID)
	assert.Equal(t, "Hello", store.confirmed[0].ItemTitle)
	assert.InDelta(t, 50, store.confirmed[0].WatchPercentage, 2)
	assert.Equal(t, 0, clock.Pending(), "sampling timer cancelled on confirmation")

	s, ok := tracker.Session("tab-1")
	require.True(t, ok)
	assert.Equal(t, StateConfirmed, s.State)
	assert.Equal(t, 0, tracker.Active())
}

func TestTrackerAlreadyWatchedDoesNotSample(t *testing.T) {
	store := newFakeStore()
	store.watched["UC1/v1"] = true
	tracker, clock := newTestTracker(store)

	s, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: NewRemotePlayer(0, 120, false)})
	require.NoError(t, err)
	assert.Equal(t, StatePauseOnly, s.State)
	assert.Equal(t, 0, clock.Pending())
}

func TestTrackerObservesPauseOnWatchedItem(t *testing.T) {
	store := newFakeStore()
	store.watched["UC1/v1"] = true
	tracker, clock := newTestTracker(store)
	player := NewRemotePlayer(0, 120, false)

	s, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: player})
	require.NoError(t, err)
	assert.True(t, s.NowPlaying)

	clock.Advance(10 * time.Second)
	player.Update(10, 0, true)
	s, err = tracker.Observe("tab-1")
	require.NoError(t, err)
	assert.Equal(t, StatePauseOnly, s.State)
	assert.True(t, s.Paused)
	assert.False(t, s.NowPlaying)
	assert.Equal(t, 10.0, s.LastPosition)

	player.Update(120, 0, false)
	s, err = tracker.Observe("tab-1")
	require.NoError(t, err)
	assert.False(t, s.NowPlaying, "item ended")
	assert.Empty(t, store.confirmed)

	_, err = tracker.Observe("tab-2")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTrackerObserveLeavesSamplingToTicks(t *testing.T) {
	store := newFakeStore()
	tracker, _ := newTestTracker(store)
	player := NewRemotePlayer(0, 120, false)

	_, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: player})
	require.NoError(t, err)

	player.Update(50, 0, false)
	s, err := tracker.Observe("tab-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.LastPosition)
	assert.False(t, s.SkipDetected)
}

func TestTrackerPausedScrubIsSkip(t *testing.T) {
	store := newFakeStore()
	tracker, clock := newTestTracker(store)
	player := NewRemotePlayer(0, 600, false)

	_, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: player})
	require.NoError(t, err)
	playAlong(clock, player, 20)

	player.Update(20, 0, true)
	clock.Advance(2 * time.Second)
	player.Update(300, 0, true)
	clock.Advance(2 * time.Second)

	s, _ := tracker.Session("tab-1")
	assert.True(t, s.SkipDetected)

	s, err = tracker.Seek("tab-1", 300)
	require.NoError(t, err)
	assert.True(t, s.SkipDetected, "seek after the tick already saw the jump")

	playAlong(clock, player, 60)
	assert.Empty(t, store.confirmed)
}

func TestTrackerRestartAfterInterruptionIsGuardedByStore(t *testing.T) {
	store := newFakeStore()
	store.checkErr = errors.New("storage unavailable")
	store.watched["UC1/v1"] = true
	tracker, clock := newTestTracker(store)
	player := NewRemotePlayer(0, 120, false)

	_, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: player})
	require.NoError(t, err)

	playAlong(clock, player, 70)
	assert.Empty(t, store.confirmed, "duplicate rejected by the store")
}

func TestTrackerNewItemAbandonsPrevious(t *testing.T) {
	store := newFakeStore()
	tracker, clock := newTestTracker(store)

	first := NewRemotePlayer(0, 600, false)
	_, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: first})
	require.NoError(t, err)
	playAlong(clock, first, 10)

	second := NewRemotePlayer(0, 60, false)
	_, err = tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v2", Player: second})
	require.NoError(t, err)
	assert.Equal(t, 1, clock.Pending())
	assert.Equal(t, 1, tracker.Active())

	playAlong(clock, second, 40)
	require.Len(t, store.confirmed, 1)
	assert.Equal(t, "v2", store.confirmed[0].ItemID)
}

func TestTrackerSeekSkipBlocksConfirmation(t *testing.T) {
	store := newFakeStore()
	tracker, clock := newTestTracker(store)
	player := NewRemotePlayer(0, 100, false)

	_, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: player})
	require.NoError(t, err)
	playAlong(clock, player, 4)

	player.Update(60, 100, false)
	s, err := tracker.Seek("tab-1", 60)
	require.NoError(t, err)
	assert.True(t, s.SkipDetected)

	playAlong(clock, player, 39)
	assert.Empty(t, store.confirmed)
}

func TestTrackerIdleViewerSuspendsButHiddenTabDoesNot(t *testing.T) {
	store := newFakeStore()
	tracker, clock := newTestTracker(store)
	player := NewRemotePlayer(0, 600, false)

	_, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: player})
	require.NoError(t, err)

	require.NoError(t, tracker.SetHidden("tab-1", true))
	playAlong(clock, player, 20)
	s, _ := tracker.Session("tab-1")
	assert.True(t, s.Hidden)
	assert.False(t, s.Suspended, "hidden tab with a playing player keeps sampling")
	assert.InDelta(t, 20, s.AccumulatedWatchedSeconds, 2)

	player.Update(player.CurrentPosition(), 0, true)
	clock.Advance(6 * time.Minute)
	s, _ = tracker.Session("tab-1")
	assert.True(t, s.Suspended)

	player.Update(player.CurrentPosition(), 0, false)
	require.NoError(t, tracker.RecordInput("tab-1"))
	clock.Advance(2 * time.Second)
	s, _ = tracker.Session("tab-1")
	assert.False(t, s.Suspended)
	assert.False(t, s.SkipDetected)
}

func TestTrackerStop(t *testing.T) {
	store := newFakeStore()
	tracker, clock := newTestTracker(store)

	_, err := tracker.Start("tab-1", StartRequest{SourceID: "UC1", ItemID: "v1", Player: NewRemotePlayer(0, 600, false)})
	require.NoError(t, err)

	s, err := tracker.Stop("tab-1")
	require.NoError(t, err)
	assert.Equal(t, StateAbandoned, s.State)
	assert.Equal(t, 0, clock.Pending())

	_, err = tracker.Stop("tab-1")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, tracker.RecordInput("tab-1"), ErrNoSession)
}

func TestTrackerValidatesRequest(t *testing.T) {
	tracker, _ := newTestTracker(newFakeStore())

	_, err := tracker.Start("", StartRequest{SourceID: "UC1", ItemID: "v1", Player: NewRemotePlayer(0, 1, false)})
	assert.Error(t, err)
	_, err = tracker.Start("tab", StartRequest{SourceID: "UC1", ItemID: "v1"})
	assert.Error(t, err)
}
