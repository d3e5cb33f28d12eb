package interp

import (
	"sync"
)

// Lock is the boundary lock. Every entry into the Starlark runtime happens while holding it:
// calling a callable, advancing an iterator, converting or releasing runtime-owned values.
//
// The lock isn't reentrant. Builtins which call back into the engine must release it for the
// duration of that call using Unlocked.
type Lock struct {
	mutex    sync.Mutex
	disabled bool
}

// NewLock creates a boundary lock. A disabled lock allows truly concurrent entry into the runtime.
func NewLock(disabled bool) *Lock {
	return &Lock{disabled: disabled}
}

func (l *Lock) Disabled() bool {
	return l.disabled
}

// Acquire blocks until the lock is held and returns the function releasing it.
// The release function may be called more than once.
func (l *Lock) Acquire() (release func()) {
	if l.disabled {
		return func() {}
	}
	l.mutex.Lock()
	var once sync.Once
	return func() {
		once.Do(l.mutex.Unlock)
	}
}

// With runs fn while holding the lock.
func (l *Lock) With(fn func() error) error {
	release := l.Acquire()
	defer release()
	return fn()
}

// Unlocked must be called while holding the lock. It releases the lock for the duration of fn
// and reacquires it afterwards, also when fn panics.
func (l *Lock) Unlocked(fn func() error) error {
	if l.disabled {
		return fn()
	}
	l.mutex.Unlock()
	defer l.mutex.Lock()
	return fn()
}
