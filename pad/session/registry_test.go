package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/webpad/pad/device"
)

func newTestRegistry(t *testing.T) (*Registry, *device.MemoryBinding, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	binding := device.NewMemoryBinding()
	return NewRegistry(binding, logger), binding, hook
}

func TestRegistry_Create(t *testing.T) {
	registry, binding, _ := newTestRegistry(t)

	t.Run("first session is player one", func(t *testing.T) {
		sess, err := registry.Create("10.0.0.1:5000", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, sess.Player())
		assert.Equal(t, "10.0.0.1:5000", sess.Identity())
		assert.Equal(t, "hello", sess.Hello().Type)
		assert.Equal(t, 1, sess.Hello().Player)
		assert.Equal(t, 1, binding.Active())
	})

	t.Run("player numbers increase", func(t *testing.T) {
		sess, err := registry.Create("10.0.0.1:5001", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, sess.Player())
		assert.Equal(t, 2, registry.Count())
	})

	t.Run("duplicate identity", func(t *testing.T) {
		_, err := registry.Create("10.0.0.1:5000", nil)
		assert.ErrorIs(t, err, ErrSessionAlreadyExists)
		assert.Equal(t, 2, registry.Count())
		assert.Equal(t, 2, binding.Active(), "no controller may leak for a rejected session")
		assert.Equal(t, 2, registry.LastPlayer(), "rejected sessions do not consume player numbers")
	})

	t.Run("empty identity", func(t *testing.T) {
		_, err := registry.Create("", nil)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})
}

func TestRegistry_CreateAllocationFailure(t *testing.T) {
	registry, binding, _ := newTestRegistry(t)
	binding.FailCreate(errors.New("ViGEm bus not installed"))

	sess, err := registry.Create("10.0.0.2:6000", nil)
	assert.Nil(t, sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceAllocation)
	assert.Zero(t, registry.Count())
	assert.Zero(t, registry.LastPlayer())

	binding.FailCreate(nil)
	sess, err = registry.Create("10.0.0.2:6000", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Player())
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	registry, binding, _ := newTestRegistry(t)
	const n = 64

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		players []int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := registry.Create(fmt.Sprintf("192.168.1.%d:4000", i), nil)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			players = append(players, sess.Player())
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, players, n)
	sort.Ints(players)
	for i, p := range players {
		assert.Equal(t, i+1, p, "player numbers must be unique and gapless")
	}
	assert.Equal(t, n, registry.Count())
	assert.Equal(t, n, binding.Active())
}

func TestRegistry_Unregister(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	_, err := registry.Create("a:1", nil)
	require.NoError(t, err)

	registry.Unregister("a:1")
	assert.Zero(t, registry.Count())
	_, err = registry.Get("a:1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NotPanics(t, func() {
		registry.Unregister("a:1")
		registry.Unregister("never-seen:0")
	})

	sess, err := registry.Create("a:1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.Player(), "player numbers are never reused")
}

func TestRegistry_LookupAndList(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	for _, id := range []string{"c:3", "a:1", "b:2"} {
		_, err := registry.Create(id, nil)
		require.NoError(t, err)
	}

	sess, err := registry.GetByPlayer(2)
	require.NoError(t, err)
	assert.Equal(t, "a:1", sess.Identity())

	_, err = registry.GetByPlayer(42)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	list := registry.List()
	require.Len(t, list, 3)
	for i, info := range list {
		assert.Equal(t, i+1, info.Player)
		assert.Nil(t, info.LastInputAt)
	}
	assert.Equal(t, "c:3", list[0].Identity)
}

func TestRegistry_Disconnect(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	calls := 0
	sess, err := registry.Create("kick:1", func() { calls++ })
	require.NoError(t, err)

	require.NoError(t, registry.Disconnect(sess.Player()))
	require.NoError(t, registry.Disconnect(sess.Player()))
	assert.Equal(t, 1, calls, "transport is closed once")

	assert.ErrorIs(t, registry.Disconnect(99), ErrSessionNotFound)
}

func TestRegistry_Shutdown(t *testing.T) {
	registry, binding, _ := newTestRegistry(t)

	for i := 0; i < 3; i++ {
		var sess *Session
		var err error
		sess, err = registry.Create(fmt.Sprintf("s:%d", i), func() {
			// The serving goroutine notices the closed transport and tears down.
			go sess.Teardown()
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, registry.Shutdown(ctx))

	assert.Zero(t, registry.Count())
	assert.Zero(t, binding.Active())

	_, err := registry.Create("late:1", nil)
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.Zero(t, binding.Active())
}

func TestRegistry_ShutdownTimeout(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	_, err := registry.Create("stuck:1", func() {})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = registry.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, registry.Count())
}

func TestRegistry_IndependentInstances(t *testing.T) {
	first, _, _ := newTestRegistry(t)
	second, _, _ := newTestRegistry(t)

	a, err := first.Create("same:1", nil)
	require.NoError(t, err)
	b, err := second.Create("same:1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, a.Player())
	assert.Equal(t, 1, b.Player())
}
