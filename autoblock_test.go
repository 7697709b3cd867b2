package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newDeterministicAutoBlockManager(cfg AutoBlockConfig) (*AutoBlockManager, *func(time.Duration)) {
	var advance func(time.Duration)
	now := time.Unix(1_700_000_000, 0)
	var calls []time.Duration
	onBlocked := func(id string, d time.Duration) { calls = append(calls, d) }
	m := NewAutoBlockManager(cfg, onBlocked)
	m.clock = func() time.Time { return now }
	advance = func(d time.Duration) { now = now.Add(d) }
	return m, &advance
}

// TestTryBlock_EnterAndEscalate reproduces the spec's concrete scenario:
// blockTriggerTimes=5, level 0 needs 3 more triggers to escalate.
func TestTryBlock_EnterAndEscalate(t *testing.T) {
	var triggered []time.Duration
	cfg := AutoBlockConfig{
		BlockTriggerTimes: 5,
		Levels: []BlockLevel{
			{BlockDuration: 60 * time.Second, GoNextLevelTriggerTimes: 3},
			{BlockDuration: 300 * time.Second, GoNextLevelTriggerTimes: 3},
		},
	}
	m := NewAutoBlockManager(cfg, func(id string, d time.Duration) { triggered = append(triggered, d) })

	for i := 0; i < 4; i++ {
		m.TryBlock("client-1")
	}
	require.Empty(t, triggered, "fewer than blockTriggerTimes calls must not block")
	require.False(t, m.IsBlocked("client-1"))

	m.TryBlock("client-1") // 5th call
	require.Len(t, triggered, 1)
	require.Equal(t, 60*time.Second, triggered[0])
	require.True(t, m.IsBlocked("client-1"))

	for i := 0; i < 2; i++ {
		m.TryBlock("client-1")
	}
	require.Len(t, triggered, 3, "level 0 stays active and re-signals on every call once blocked")

	m.TryBlock("client-1") // 3rd call since entering level 0: escalates
	require.Len(t, triggered, 4)
	require.Equal(t, 300*time.Second, triggered[3])
}

func TestTryBlock_DecayAfterIdleTimeKeepsEntryBlocked(t *testing.T) {
	cfg := AutoBlockConfig{
		BlockTriggerTimes: 1,
		Levels: []BlockLevel{
			{BlockDuration: time.Minute, GoNextLevelTriggerTimes: 3, ReduceOneTriggerTimeInterval: time.Hour},
		},
	}
	m, advance := newDeterministicAutoBlockManager(cfg)

	m.TryBlock("client-1") // enters level 0, triggerTimes reset to 0
	m.TryBlock("client-1") // triggerTimes: 1
	require.True(t, m.IsBlocked("client-1"))

	(*advance)(2 * time.Hour) // decays 2 off the trigger count before the next call
	m.TryBlock("client-1")    // would have been triggerTimes 2 without decay; with decay (1-2 clamped to 0, then +1) it's 1
	require.True(t, m.IsBlocked("client-1"), "decay must not evict the entry itself, only reduce its count")
}

func TestUnblock_RemovesEntryEntirely(t *testing.T) {
	cfg := AutoBlockConfig{BlockTriggerTimes: 1, Levels: []BlockLevel{{BlockDuration: time.Minute}}}
	m := NewAutoBlockManager(cfg, nil)

	m.TryBlock("client-1")
	require.True(t, m.IsBlocked("client-1"))

	m.Unblock("client-1")
	require.False(t, m.IsBlocked("client-1"))
	require.Equal(t, 0, m.Snapshot())
}

func TestEvictExpired_RemovesDecayedEntries(t *testing.T) {
	cfg := AutoBlockConfig{
		BlockTriggerTimes: 1,
		Levels:            []BlockLevel{{BlockDuration: time.Minute, ReduceOneTriggerTimeInterval: time.Hour}},
	}
	m, advance := newDeterministicAutoBlockManager(cfg)

	m.TryBlock("client-1")
	require.Equal(t, 1, m.Snapshot())

	(*advance)(2 * time.Hour)
	evicted := m.EvictExpired()
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, m.Snapshot())
}
