package bindings

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
	"github.com/cube2222/octostar/octosql"
)

// Connection is the Starlark value wrapping an engine connection.
type Connection struct {
	module *Module
	conn   *engine.Connection
}

var _ starlark.HasAttrs = (*Connection)(nil)

func (c *Connection) Unwrap() *engine.Connection {
	return c.conn
}

func (c *Connection) String() string {
	return fmt.Sprintf("<connection %s>", c.conn.ID())
}

func (c *Connection) Type() string         { return "connection" }
func (c *Connection) Freeze()              {}
func (c *Connection) Truth() starlark.Bool { return starlark.True }
func (c *Connection) Hash() (uint32, error) {
	return starlark.String(c.conn.ID()).Hash()
}

type connectionMethod func(c *Connection, thread *starlark.Thread, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var connectionMethods = map[string]connectionMethod{
	"close":                     connectionClose,
	"create_table_function":     connectionCreateTableFunction,
	"list_table_functions":      connectionListTableFunctions,
	"table_function":            connectionTableFunction,
	"unregister_table_function": connectionUnregisterTableFunction,
}

func (c *Connection) AttrNames() []string {
	names := make([]string, 0, len(connectionMethods)+1)
	for name := range connectionMethods {
		names = append(names, name)
	}
	names = append(names, "closed")
	sort.Strings(names)
	return names
}

func (c *Connection) Attr(name string) (starlark.Value, error) {
	if name == "closed" {
		return starlark.Bool(c.conn.IsClosed()), nil
	}
	method, ok := connectionMethods[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return method(c, thread, fn.Name(), args, kwargs)
	}), nil
}

func connectionClose(c *Connection, thread *starlark.Thread, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 0); err != nil {
		return nil, err
	}
	if err := c.conn.Close(); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// create_table_function(name, callable, parameters=None, schema=None, type="tuples")
func connectionCreateTableFunction(c *Connection, thread *starlark.Thread, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var functionName string
	var callable starlark.Callable
	var parameters starlark.Value = starlark.None
	var schema starlark.Value = starlark.None
	var variant starlark.Value = starlark.String("tuples")
	if err := starlark.UnpackArgs(name, args, kwargs,
		"name", &functionName,
		"callable", &callable,
		"parameters?", &parameters,
		"schema?", &schema,
		"type?", &variant,
	); err != nil {
		return nil, err
	}

	var parameterNames []string
	if parameters != starlark.None {
		iter := starlark.Iterate(parameters)
		if iter == nil {
			return nil, errors.Errorf("%s: parameters must be a list of strings, got %s", name, parameters.Type())
		}
		defer iter.Done()
		var parameter starlark.Value
		for iter.Next(&parameter) {
			str, ok := parameter.(starlark.String)
			if !ok {
				return nil, errors.Errorf("%s: parameters must be a list of strings, got %s element", name, parameter.Type())
			}
			parameterNames = append(parameterNames, string(str))
		}
	}

	if _, err := c.module.registrar.Register(c.conn, functionName, callable, parameterNames, schema, variant); err != nil {
		return nil, err
	}
	return c, nil
}

func connectionUnregisterTableFunction(c *Connection, thread *starlark.Thread, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var functionName string
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &functionName); err != nil {
		return nil, err
	}
	if err := c.module.registrar.Unregister(c.conn, functionName); err != nil {
		return nil, err
	}
	return c, nil
}

func connectionListTableFunctions(c *Connection, thread *starlark.Thread, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 0); err != nil {
		return nil, err
	}
	names, err := c.conn.ListTableFunctions()
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, len(names))
	for i := range names {
		out[i] = starlark.String(names[i])
	}
	return starlark.NewList(out), nil
}

// table_function(name, *args, **kwargs) runs the table function and returns its rows as a list of tuples.
func connectionTableFunction(c *Connection, thread *starlark.Thread, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) < 1 {
		return nil, errors.Errorf("%s: missing argument for name", name)
	}
	functionName, ok := args[0].(starlark.String)
	if !ok {
		return nil, errors.Errorf("%s: name must be a string, got %s", name, args[0].Type())
	}

	positional := make([]octosql.Value, len(args)-1)
	for i, arg := range args[1:] {
		value, err := interp.InferValue(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: argument %d", name, i+1)
		}
		positional[i] = value
	}
	named := make(map[string]octosql.Value, len(kwargs))
	for _, kwarg := range kwargs {
		key := string(kwarg[0].(starlark.String))
		value, err := interp.InferValue(kwarg[1])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: argument %s", name, key)
		}
		named[key] = value
	}

	var result *engine.Result
	if err := unlocked(thread, func() error {
		var err error
		result, err = c.conn.TableFunction(interp.ContextFromThread(thread), string(functionName), positional, named)
		return err
	}); err != nil {
		return nil, err
	}

	rows := make([]starlark.Value, 0, result.RowCount())
	for _, row := range result.Rows() {
		tuple := make(starlark.Tuple, len(row))
		for i := range row {
			value, err := interp.FromValue(row[i])
			if err != nil {
				return nil, err
			}
			tuple[i] = value
		}
		rows = append(rows, tuple)
	}
	return starlark.NewList(rows), nil
}
