// Package bindings exposes connections and table function registration to Starlark scripts.
package bindings

import (
	"github.com/pkg/errors"
	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
	"github.com/cube2222/octostar/modulestate"
	"github.com/cube2222/octostar/tvf"
)

// Module is the embedding API of a session.
type Module struct {
	state     *modulestate.ModuleState
	registrar *tvf.Registrar
}

func New(state *modulestate.ModuleState) *Module {
	return &Module{
		state:     state,
		registrar: tvf.NewRegistrar(state.Interpreter()),
	}
}

func (m *Module) Registrar() *tvf.Registrar {
	return m.registrar
}

// Install makes the module's builtins and the standard modules predeclared in the interpreter.
func (m *Module) Install() error {
	it := m.state.Interpreter()
	return it.Lock().With(func() error {
		standard, err := m.state.GetImportCache().Standard()
		if err != nil {
			return errors.Wrap(err, "couldn't resolve standard modules")
		}
		for name, value := range standard {
			it.SetPredeclared(name, value)
		}
		for name, value := range m.builtins() {
			it.SetPredeclared(name, value)
		}
		return nil
	})
}

func (m *Module) builtins() starlark.StringDict {
	return starlark.StringDict{
		"connect":                   starlark.NewBuiltin("connect", m.connect),
		"default_connection":        starlark.NewBuiltin("default_connection", m.defaultConnection),
		"create_table_function":     starlark.NewBuiltin("create_table_function", m.onDefaultConnection(connectionCreateTableFunction)),
		"unregister_table_function": starlark.NewBuiltin("unregister_table_function", m.onDefaultConnection(connectionUnregisterTableFunction)),
		"table_function":            starlark.NewBuiltin("table_function", m.onDefaultConnection(connectionTableFunction)),
	}
}

func (m *Module) wrap(conn *engine.Connection) *Connection {
	return &Connection{module: m, conn: conn}
}

func (m *Module) connect(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	database := engine.InMemoryPath
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "database?", &database); err != nil {
		return nil, err
	}
	conn, err := m.state.Connect(database)
	if err != nil {
		return nil, err
	}
	return m.wrap(conn), nil
}

func (m *Module) defaultConnection(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	conn, err := m.state.GetDefaultConnection()
	if err != nil {
		return nil, err
	}
	return m.wrap(conn), nil
}

// onDefaultConnection turns a connection method into a module level function using the default connection.
func (m *Module) onDefaultConnection(method connectionMethod) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		conn, err := m.state.GetDefaultConnection()
		if err != nil {
			return nil, err
		}
		return method(m.wrap(conn), thread, fn.Name(), args, kwargs)
	}
}

// unlocked runs an engine call with the interpreter lock released, as the engine calls back into Starlark.
func unlocked(thread *starlark.Thread, fn func() error) error {
	it, ok := interp.FromThread(thread)
	if !ok {
		return fn()
	}
	return it.Lock().Unlocked(fn)
}
