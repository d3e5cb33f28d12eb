package interp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

func init() {
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
}

const (
	threadLocalInterpreter = "octostar.interpreter"
	threadLocalContext     = "octostar.context"
)

// ContextFromThread returns the context the thread's execution was started with.
func ContextFromThread(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(threadLocalContext).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

type Config struct {
	// DisableGlobalLock lets multiple goroutines enter the runtime at once.
	DisableGlobalLock bool
	// ProgramCacheSize is the total source size of compiled programs kept in memory.
	ProgramCacheSize int64
	// Stdout receives the output of print. Defaults to os.Stdout.
	Stdout io.Writer
}

// Interpreter owns a Starlark runtime: its boundary lock, its predeclared names and its loadable modules.
type Interpreter struct {
	lock     *Lock
	programs *ristretto.Cache
	stdout   io.Writer

	mutex       sync.RWMutex
	predeclared starlark.StringDict
	providers   map[string]ModuleProvider
	modules     map[string]*moduleEntry
	mainFile    string
}

func New(config Config) (*Interpreter, error) {
	if config.ProgramCacheSize <= 0 {
		config.ProgramCacheSize = 16 << 20
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}

	programs, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     config.ProgramCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create program cache")
	}

	it := &Interpreter{
		lock:        NewLock(config.DisableGlobalLock),
		programs:    programs,
		stdout:      config.Stdout,
		predeclared: starlark.StringDict{},
		providers:   map[string]ModuleProvider{},
		modules:     map[string]*moduleEntry{},
	}
	it.predeclared["arrow_table"] = starlark.NewBuiltin("arrow_table", arrowTableBuiltin)
	for name, provider := range standardModules {
		it.providers[name] = provider
	}
	return it, nil
}

func (it *Interpreter) Lock() *Lock {
	return it.lock
}

// FromThread returns the interpreter a thread was created by.
func FromThread(thread *starlark.Thread) (*Interpreter, bool) {
	it, ok := thread.Local(threadLocalInterpreter).(*Interpreter)
	return it, ok
}

// SetPredeclared makes the value visible under the name in every program executed afterwards.
func (it *Interpreter) SetPredeclared(name string, value starlark.Value) {
	it.mutex.Lock()
	defer it.mutex.Unlock()
	it.predeclared[name] = value
}

func (it *Interpreter) Predeclared() starlark.StringDict {
	it.mutex.RLock()
	defer it.mutex.RUnlock()
	out := make(starlark.StringDict, len(it.predeclared))
	for k, v := range it.predeclared {
		out[k] = v
	}
	return out
}

func (it *Interpreter) isPredeclared(name string) bool {
	it.mutex.RLock()
	defer it.mutex.RUnlock()
	_, ok := it.predeclared[name]
	return ok
}

// MainFile is the path of the top-level script, empty in interactive sessions.
func (it *Interpreter) MainFile() string {
	it.mutex.RLock()
	defer it.mutex.RUnlock()
	return it.mainFile
}

func (it *Interpreter) NewThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Load: it.load,
		Print: func(thread *starlark.Thread, msg string) {
			fmt.Fprintln(it.stdout, msg)
		},
	}
	thread.SetLocal(threadLocalInterpreter, it)
	return thread
}

// Call invokes a callable on a fresh thread. The caller must hold the lock.
func (it *Interpreter) Call(fn starlark.Callable, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	thread := it.NewThread(fn.Name())
	return starlark.Call(thread, fn, args, kwargs)
}

// ExecFile runs a top-level script, which becomes the main file of the session.
// If src is nil, the file is read from disk.
func (it *Interpreter) ExecFile(ctx context.Context, filename string, src interface{}) (starlark.StringDict, error) {
	release := it.lock.Acquire()
	defer release()

	it.mutex.Lock()
	it.mainFile = filename
	it.mutex.Unlock()

	program, err := it.compile(filename, src)
	if err != nil {
		return nil, err
	}
	thread := it.NewThread(filename)
	defer watchContext(ctx, thread)()

	globals, err := program.Init(thread, it.Predeclared())
	if err != nil {
		return nil, describeError(err)
	}
	globals.Freeze()
	return globals, nil
}

// ExecChunk runs a single interactive input in the given environment, which is updated with new globals.
// Expressions are evaluated and their non-None results returned.
func (it *Interpreter) ExecChunk(ctx context.Context, src string, env starlark.StringDict) (starlark.Value, error) {
	release := it.lock.Acquire()
	defer release()

	thread := it.NewThread("<stdin>")
	defer watchContext(ctx, thread)()

	predeclared := it.Predeclared()
	for k, v := range env {
		predeclared[k] = v
	}

	if _, err := syntax.ParseExpr("<stdin>", src, 0); err == nil {
		value, err := starlark.Eval(thread, "<stdin>", src, predeclared)
		if err != nil {
			return nil, describeError(err)
		}
		return value, nil
	}

	globals, err := starlark.ExecFile(thread, "<stdin>", src, predeclared)
	if err != nil {
		return nil, describeError(err)
	}
	for k, v := range globals {
		env[k] = v
	}
	return starlark.None, nil
}

func (it *Interpreter) compile(filename string, src interface{}) (*starlark.Program, error) {
	var data []byte
	switch src := src.(type) {
	case nil:
		var err error
		data, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't read file %s", filename)
		}
	case string:
		data = []byte(src)
	case []byte:
		data = src
	default:
		return nil, errors.Errorf("invalid source type: %T", src)
	}

	hash := sha256.Sum256(data)
	key := filepath.Clean(filename) + ":" + hex.EncodeToString(hash[:])
	if cached, ok := it.programs.Get(key); ok {
		return cached.(*starlark.Program), nil
	}

	_, program, err := starlark.SourceProgram(filename, data, it.isPredeclared)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't compile %s", filename)
	}
	// The cache may drop the value, every lookup has to handle a miss.
	it.programs.Set(key, program, int64(len(data)))
	return program, nil
}

func (it *Interpreter) Close() {
	it.programs.Close()
}

func watchContext(ctx context.Context, thread *starlark.Thread) (stop func()) {
	thread.SetLocal(threadLocalContext, ctx)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return func() {
		close(done)
	}
}

func describeError(err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		log.Printf("[DEBUG] starlark backtrace: %s", evalErr.Backtrace())
	}
	return err
}
