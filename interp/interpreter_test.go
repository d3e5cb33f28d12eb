package interp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

func newTestInterpreter(t *testing.T, config Config) *Interpreter {
	t.Helper()
	it, err := New(config)
	require.NoError(t, err)
	t.Cleanup(it.Close)
	return it
}

func TestExecFile(t *testing.T) {
	var stdout bytes.Buffer
	it := newTestInterpreter(t, Config{Stdout: &stdout})

	globals, err := it.ExecFile(context.Background(), "main.star", `
load("math", "math")
x = math.floor(2.5)
print("hello", x)
`)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(2), globals["x"])
	assert.Equal(t, "hello 2\n", stdout.String())
	assert.Equal(t, "main.star", it.MainFile())
	assert.True(t, it.IsModuleLoaded("math"))
	assert.False(t, it.IsModuleLoaded("json"))

	// Running the same source again goes through the program cache.
	globals, err = it.ExecFile(context.Background(), "main.star", `
load("math", "math")
x = math.floor(2.5)
print("hello", x)
`)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(2), globals["x"])
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.star"), []byte("def double(x):\n    return 2 * x\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.star"), []byte("load(\"lib.star\", \"double\")\ny = double(21)\n"), 0644))

	it := newTestInterpreter(t, Config{})
	globals, err := it.ExecFile(context.Background(), filepath.Join(dir, "main.star"), nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(42), globals["y"])
	assert.True(t, it.IsModuleLoaded("lib.star"))

	_, err = it.ExecFile(context.Background(), filepath.Join(dir, "other.star"), `load("missing.star", "x")`)
	assert.Error(t, err)
	assert.False(t, it.IsModuleLoaded("missing.star"))
}

func TestExecChunk(t *testing.T) {
	it := newTestInterpreter(t, Config{})
	env := starlark.StringDict{}

	value, err := it.ExecChunk(context.Background(), "a = 20", env)
	require.NoError(t, err)
	assert.Equal(t, starlark.None, value)

	value, err = it.ExecChunk(context.Background(), "a + 1", env)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(21), value)
	assert.Equal(t, "", it.MainFile())
}

func TestExecFileCancellation(t *testing.T) {
	it := newTestInterpreter(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := it.ExecFile(ctx, "loop.star", `
def loop():
    x = 0
    while True:
        x += 1
loop()
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestImportCache(t *testing.T) {
	it := newTestInterpreter(t, Config{})
	cache := NewImportCache(it)

	release := it.Lock().Acquire()
	defer release()

	standard, err := cache.Standard()
	require.NoError(t, err)
	assert.Len(t, standard, 4)
	assert.True(t, it.IsModuleLoaded("json"))

	notebook, err := cache.IsNotebook()
	require.NoError(t, err)
	assert.False(t, notebook)

	provided := 0
	it.RegisterModule("notebook", func() (starlark.StringDict, error) {
		provided++
		return starlark.StringDict{
			"config": starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
				"kernel": starlark.String("k1"),
			}),
		}, nil
	})

	// Not loaded yet, so it must not be force-loaded.
	notebook, err = cache.IsNotebook()
	require.NoError(t, err)
	assert.False(t, notebook)
	assert.Equal(t, 0, provided)

	_, err = it.LoadModule("notebook")
	require.NoError(t, err)
	notebook, err = cache.IsNotebook()
	require.NoError(t, err)
	assert.True(t, notebook)
	assert.Equal(t, 1, provided)
}

func TestLock(t *testing.T) {
	lock := NewLock(false)
	release := lock.Acquire()

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		lock.With(func() error { return nil })
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired twice")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, lock.Unlocked(func() error {
		<-acquired
		return nil
	}))
	release()
	release()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock.With(func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, counter)
}

func TestRuntimeVersion(t *testing.T) {
	version, err := RuntimeVersion()
	if err != nil {
		t.Skipf("no build info: %s", err)
	}
	assert.Regexp(t, `^\d+\.\d+$`, FormatVersion(version))
}
