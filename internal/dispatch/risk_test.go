package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSnapshotStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store := RedisSnapshotStore{RDB: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	ctx := context.Background()

	// Empty store yields the quiet defaults.
	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, RiskState{Bird: BirdLow, RunwayA: RunwayClear, RunwayB: RunwayClear}, state)

	want := RiskState{Bird: BirdHigh, RunwayA: RunwayWarning, RunwayB: RunwayClear}
	require.NoError(t, store.Save(ctx, want))

	state, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, state)
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []RiskChange
}

func (r *changeRecorder) record(c RiskChange) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *changeRecorder) snapshot() []RiskChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RiskChange(nil), r.changes...)
}

func startMachine(t *testing.T, store SnapshotStore, rec *changeRecorder) *RiskMachine {
	t.Helper()
	m := NewRiskMachine(store, nil, rec.record)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	return m
}

func TestRiskMachine_AcceptsTransitionsRejectsEqual(t *testing.T) {
	rec := &changeRecorder{}
	m := startMachine(t, nil, rec)

	m.ProposeBird(BirdLow) // equal to initial, absorbed
	m.ProposeBird(BirdHigh)
	m.ProposeBird(BirdHigh) // equal, absorbed
	m.ProposeRunway("A", RunwayWarning)
	m.ProposeRunway("B", RunwayClear) // equal, absorbed

	state := m.Snapshot()
	assert.Equal(t, BirdHigh, state.Bird)
	assert.Equal(t, RunwayWarning, state.RunwayA)
	assert.Equal(t, RunwayClear, state.RunwayB)

	changes := rec.snapshot()
	require.Len(t, changes, 2)
	assert.Equal(t, "BR_CHANGED", changes[0].Kind)
	assert.Equal(t, string(BirdLow), changes[0].Prev)
	assert.Equal(t, string(BirdHigh), changes[0].Value)
	assert.Equal(t, "RWY_A_STATUS_CHANGED", changes[1].Kind)
	assert.Equal(t, "ME_RA:1", changes[1].ConsoleLine())
}

func TestRiskMachine_RestoresSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	store := RedisSnapshotStore{RDB: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	require.NoError(t, store.Save(context.Background(),
		RiskState{Bird: BirdMedium, RunwayA: RunwayClear, RunwayB: RunwayWarning}))

	rec := &changeRecorder{}
	m := startMachine(t, store, rec)

	state := m.Snapshot()
	assert.Equal(t, BirdMedium, state.Bird)
	assert.Equal(t, RunwayWarning, state.RunwayB)
	assert.Equal(t, "B_ONLY", RiskState{Bird: state.Bird, RunwayA: RunwayWarning, RunwayB: RunwayClear}.Availability())
	assert.Equal(t, "NONE", RiskState{RunwayA: RunwayWarning, RunwayB: RunwayWarning}.Availability())
}

func TestRunwayRule_WarnsAfterHoldClearsAfterQuiet(t *testing.T) {
	rec := &changeRecorder{}
	m := startMachine(t, nil, rec)
	rule := NewRunwayRule(m, 3*time.Second, 10*time.Second, 0.5)

	base := time.Now()
	rule.Observe("RWY_A", 0.9, base)
	rule.Observe("RWY_A", 0.3, base.Add(time.Second)) // below threshold, ignored
	rule.Observe("TWY_B", 0.9, base.Add(time.Second)) // not a runway
	rule.Observe("RWY_A", 0.9, base.Add(2*time.Second))

	// No warning yet: presence has not held for 3s.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	rule.Observe("RWY_A", 0.9, base.Add(3*time.Second))
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "RWY_A_STATUS_CHANGED", rec.snapshot()[0].Kind)
	assert.Equal(t, string(RunwayWarning), rec.snapshot()[0].Value)

	// Quiet period passes, tick clears.
	rule.Tick(base.Add(14 * time.Second))
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, string(RunwayClear), rec.snapshot()[1].Value)
}

func TestRunwayRule_GapResetsHold(t *testing.T) {
	rec := &changeRecorder{}
	m := startMachine(t, nil, rec)
	rule := NewRunwayRule(m, 3*time.Second, 10*time.Second, 0.5)

	base := time.Now()
	rule.Observe("RWY_B", 0.9, base)
	// Sightings resume only after a full quiet period: the hold restarts.
	rule.Observe("RWY_B", 0.9, base.Add(11*time.Second))
	rule.Observe("RWY_B", 0.9, base.Add(13*time.Second))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
