package interp

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ModuleProvider builds the globals of a module loadable by name.
type ModuleProvider func() (starlark.StringDict, error)

var standardModules = map[string]ModuleProvider{
	"math": func() (starlark.StringDict, error) {
		return starlark.StringDict{"math": starlarkmath.Module}, nil
	},
	"time": func() (starlark.StringDict, error) {
		return starlark.StringDict{"time": starlarktime.Module}, nil
	},
	"json": func() (starlark.StringDict, error) {
		return starlark.StringDict{"json": starlarkjson.Module}, nil
	},
	"struct": func() (starlark.StringDict, error) {
		return starlark.StringDict{"struct": starlark.NewBuiltin("struct", starlarkstruct.Make)}, nil
	},
}

type moduleEntry struct {
	globals starlark.StringDict
	err     error
}

// RegisterModule makes a module loadable with load("<name>", ...).
func (it *Interpreter) RegisterModule(name string, provider ModuleProvider) {
	it.mutex.Lock()
	defer it.mutex.Unlock()
	it.providers[name] = provider
}

// IsModuleLoaded reports whether the module has already been loaded, without loading it.
func (it *Interpreter) IsModuleLoaded(name string) bool {
	it.mutex.RLock()
	defer it.mutex.RUnlock()
	entry, ok := it.modules[name]
	return ok && entry != nil && entry.err == nil
}

// LoadModule returns the globals of the module, loading it if necessary. The caller must hold the lock.
func (it *Interpreter) LoadModule(name string) (starlark.StringDict, error) {
	return it.load(it.NewThread("load "+name), name)
}

func (it *Interpreter) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	it.mutex.Lock()
	entry, ok := it.modules[module]
	if ok {
		it.mutex.Unlock()
		if entry == nil {
			return nil, errors.Errorf("cycle in load graph at %s", module)
		}
		return entry.globals, entry.err
	}
	// A nil entry marks a module being loaded.
	it.modules[module] = nil
	provider, isProvided := it.providers[module]
	mainFile := it.mainFile
	it.mutex.Unlock()

	var globals starlark.StringDict
	var err error
	switch {
	case isProvided:
		globals, err = provider()
	case strings.HasSuffix(module, ".star"):
		globals, err = it.loadFile(thread, resolveModulePath(mainFile, module))
	default:
		err = errors.Errorf("module %s not found", module)
	}

	it.mutex.Lock()
	defer it.mutex.Unlock()
	if err != nil {
		delete(it.modules, module)
		return nil, err
	}
	it.modules[module] = &moduleEntry{globals: globals}
	return globals, nil
}

func (it *Interpreter) loadFile(parent *starlark.Thread, path string) (starlark.StringDict, error) {
	program, err := it.compile(path, nil)
	if err != nil {
		return nil, err
	}
	thread := it.NewThread(path)
	thread.Print = parent.Print
	globals, err := program.Init(thread, it.Predeclared())
	if err != nil {
		return nil, describeError(err)
	}
	globals.Freeze()
	return globals, nil
}

func resolveModulePath(mainFile, module string) string {
	if filepath.IsAbs(module) || mainFile == "" {
		return module
	}
	return filepath.Join(filepath.Dir(mainFile), module)
}
