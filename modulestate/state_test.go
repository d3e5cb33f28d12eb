package modulestate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
)

func newTestState(t *testing.T, config interp.Config) *ModuleState {
	t.Helper()
	it, err := interp.New(config)
	require.NoError(t, err)
	t.Cleanup(it.Close)
	state := New(it, engine.Config{Threads: 2})
	t.Cleanup(func() { state.Close() })
	return state
}

func TestDefaultConnectionSelfHeals(t *testing.T) {
	state := newTestState(t, interp.Config{})

	first, err := state.GetDefaultConnection()
	require.NoError(t, err)
	again, err := state.GetDefaultConnection()
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, first.Close())
	healed, err := state.GetDefaultConnection()
	require.NoError(t, err)
	assert.NotSame(t, first, healed)
	assert.False(t, healed.IsClosed())

	state.ClearDefaultConnection()
	fresh, err := state.GetDefaultConnection()
	require.NoError(t, err)
	assert.NotSame(t, healed, fresh)
	assert.False(t, fresh.IsClosed())
	// Clearing doesn't close the connection someone may still be using.
	assert.False(t, healed.IsClosed())
}

func TestSetDefaultConnection(t *testing.T) {
	state := newTestState(t, interp.Config{})
	conn, err := state.Connect(":memory:named")
	require.NoError(t, err)

	state.SetDefaultConnection(conn)
	got, err := state.GetDefaultConnection()
	require.NoError(t, err)
	assert.Same(t, conn, got)
}

func TestConcurrentDefaultConnectionWithoutGlobalLock(t *testing.T) {
	state := newTestState(t, interp.Config{DisableGlobalLock: true})

	const workers = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	connections := make([]*engine.Connection, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			connections[i], errs[i] = state.GetDefaultConnection()
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, connections[i])
		assert.False(t, connections[i].IsClosed())
		assert.Same(t, connections[0], connections[i])
	}
	assert.Len(t, state.ownedDatabases, 1)
}

func TestImportCacheReset(t *testing.T) {
	state := newTestState(t, interp.Config{})
	first := state.GetImportCache()
	assert.Same(t, first, state.GetImportCache())

	state.ClearImportCache()
	assert.NotSame(t, first, state.GetImportCache())
}

func TestInstanceCacheSharing(t *testing.T) {
	state := newTestState(t, interp.Config{})

	left, err := state.Connect(":memory:shared")
	require.NoError(t, err)
	right, err := state.Connect(":memory:shared")
	require.NoError(t, err)
	assert.Same(t, left.Database(), right.Database())

	anonymous, err := state.Connect(":memory:")
	require.NoError(t, err)
	assert.NotSame(t, left.Database(), anonymous.Database())
	assert.Equal(t, []string{":memory:shared"}, state.GetInstanceCache().Paths())

	require.NoError(t, state.Close())
	assert.True(t, left.IsClosed())
	assert.True(t, anonymous.IsClosed())
}

func TestEnvironment(t *testing.T) {
	t.Run("interactive", func(t *testing.T) {
		state := newTestState(t, interp.Config{})
		assert.Equal(t, EnvironmentInteractive, state.Environment())
		assert.Regexp(t, `^\d+\.\d+$`, state.FormattedVersion())
	})

	t.Run("normal", func(t *testing.T) {
		it, err := interp.New(interp.Config{})
		require.NoError(t, err)
		defer it.Close()
		_, err = it.ExecFile(context.Background(), "main.star", "x = 1")
		require.NoError(t, err)

		state := New(it, engine.DefaultConfig())
		defer state.Close()
		assert.Equal(t, EnvironmentNormal, state.Environment())
	})

	t.Run("notebook", func(t *testing.T) {
		it, err := interp.New(interp.Config{})
		require.NoError(t, err)
		defer it.Close()
		config := starlark.NewDict(1)
		require.NoError(t, config.SetKey(starlark.String("kernel"), starlark.String("kernel-1")))
		it.RegisterModule("notebook", func() (starlark.StringDict, error) {
			return starlark.StringDict{"config": config}, nil
		})
		require.NoError(t, it.Lock().With(func() error {
			_, err := it.LoadModule("notebook")
			return err
		}))

		state := New(it, engine.DefaultConfig())
		defer state.Close()
		assert.Equal(t, EnvironmentNotebook, state.Environment())
	})

	t.Run("notebook module registered but not loaded", func(t *testing.T) {
		it, err := interp.New(interp.Config{})
		require.NoError(t, err)
		defer it.Close()
		it.RegisterModule("notebook", func() (starlark.StringDict, error) {
			t.Fatal("notebook module must not be force-loaded")
			return nil, nil
		})

		state := New(it, engine.DefaultConfig())
		defer state.Close()
		assert.Equal(t, EnvironmentInteractive, state.Environment())
		assert.False(t, it.IsModuleLoaded("notebook"))
	})
}
