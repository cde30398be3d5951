package encounter_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/soulforge/internal/game/combat"
	"github.com/cory-johannsen/soulforge/internal/game/encounter"
)

func testFactory(t *testing.T) encounter.Factory {
	return func(string) (*encounter.Encounter, error) {
		return newFixture(t, husk(), nil).enc, nil
	}
}

func TestRegistry_CreateGetEnd(t *testing.T) {
	r := encounter.NewRegistry(testFactory(t), 0, nil)
	s, err := r.Create()
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.End(s.ID))
	assert.False(t, r.End(s.ID))
	_, ok = r.Get(s.ID)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistry_SessionsAreIndependent(t *testing.T) {
	r := encounter.NewRegistry(testFactory(t), 0, nil)
	a, err := r.Create()
	require.NoError(t, err)
	b, err := r.Create()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	require.NoError(t, r.Do(a.ID, func(e *encounter.Encounter) {
		e.Tick(frame, encounter.Input{})
		e.Player().TakeDamage(30)
	}))
	require.NoError(t, r.Do(b.ID, func(e *encounter.Encounter) {
		assert.Equal(t, 100.0, e.Player().HP())
		assert.Zero(t, e.Now())
		assert.Equal(t, combat.PhaseOverworld, e.Combat().Phase())
	}))
	assert.ElementsMatch(t, []string{a.ID, b.ID}, r.IDs())
}

func TestRegistry_DoUnknownSession(t *testing.T) {
	r := encounter.NewRegistry(testFactory(t), 0, nil)
	called := false
	err := r.Do("missing", func(*encounter.Encounter) { called = true })
	assert.ErrorIs(t, err, encounter.ErrSessionNotFound)
	assert.False(t, called)
}

func TestRegistry_FactoryErrorRegistersNothing(t *testing.T) {
	boom := errors.New("boom")
	r := encounter.NewRegistry(func(string) (*encounter.Encounter, error) { return nil, boom }, 0, nil)
	_, err := r.Create()
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, r.Len())
}

func TestRegistry_SlowFactoryDoesNotBlockOtherSessions(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	r := encounter.NewRegistry(func(string) (*encounter.Encounter, error) {
		calls++
		if calls > 1 {
			close(entered)
			<-release
		}
		return newFixture(t, husk(), nil).enc, nil
	}, 0, nil)
	a, err := r.Create()
	require.NoError(t, err)

	created := make(chan error, 1)
	go func() {
		_, err := r.Create()
		created <- err
	}()
	<-entered

	reached := make(chan struct{})
	go func() {
		_ = r.Do(a.ID, func(e *encounter.Encounter) { e.Tick(frame, encounter.Input{}) })
		_, _ = r.Get(a.ID)
		close(reached)
	}()
	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("existing session blocked while another was being created")
	}
	assert.Equal(t, 1, r.Len())

	close(release)
	require.NoError(t, <-created)
	assert.Equal(t, 2, r.Len())
}

func TestNewRegistry_PanicsOnNilFactory(t *testing.T) {
	assert.Panics(t, func() { encounter.NewRegistry(nil, 0, nil) })
}

func TestRegistry_IdleSessionEvicted(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := encounter.NewRegistry(testFactory(t), 20*time.Millisecond, zap.New(core))
	t.Cleanup(r.Close)
	s, err := r.Create()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := r.Get(s.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("session evicted after idle timeout").Len())
}

func TestRegistry_EndStopsIdleTimer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := encounter.NewRegistry(testFactory(t), 20*time.Millisecond, zap.New(core))
	s, err := r.Create()
	require.NoError(t, err)
	require.True(t, r.End(s.ID))

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, logs.FilterMessage("session evicted after idle timeout").Len())
}

func TestRegistry_ConcurrentSessions_NoRace(t *testing.T) {
	r := encounter.NewRegistry(testFactory(t), time.Minute, nil)
	t.Cleanup(r.Close)

	const sessions = 8
	ids := make([]string, sessions)
	for i := range ids {
		s, err := r.Create()
		require.NoError(t, err)
		ids[i] = s.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					_ = r.Do(id, func(e *encounter.Encounter) {
						e.Tick(frame, encounter.Input{Attack: i%7 == 0, Defend: i%3 == 0})
					})
				}
			}()
		}
	}
	wg.Wait()

	for _, id := range ids {
		require.NoError(t, r.Do(id, func(e *encounter.Encounter) {
			assert.Equal(t, 200*frame, e.Now())
		}))
	}
}
