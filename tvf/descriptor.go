package tvf

import (
	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
	"github.com/cube2222/octostar/octosql"
)

// Descriptor is the registration payload of a callable-backed table function.
// It's attached to the catalog entry as its function info.
type Descriptor struct {
	Name       string
	Callable   starlark.Callable
	Schema     engine.Schema
	Parameters []string
	Variant    Variant

	interp *interp.Interpreter
}

// ParseSchema validates a schema of [name, type] pairs. The caller must hold the lock.
func ParseSchema(name string, schema starlark.Value) (engine.Schema, error) {
	if schema == nil || schema == starlark.None {
		return nil, engine.InvalidInputErrorf("Table functions require a schema.")
	}
	iter := starlark.Iterate(schema)
	if iter == nil {
		return nil, engine.InvalidInputErrorf("Invalid schema format: each schema item must be a [name, type] pair")
	}
	defer iter.Done()

	var out engine.Schema
	var item starlark.Value
	for iter.Next(&item) {
		if str, ok := item.(starlark.String); ok {
			return nil, engine.InvalidInputErrorf("Invalid schema format: expected [name, type] pairs, got string '%s'", string(str))
		}
		pair, ok := item.(starlark.Indexable)
		if !ok || pair.Len() < 2 {
			return nil, engine.InvalidInputErrorf("Invalid schema format: each schema item must be a [name, type] pair")
		}
		columnType, err := octosql.ParseType(rawString(pair.Index(1)))
		if err != nil {
			return nil, engine.InvalidInputErrorf("%s", err)
		}
		out = append(out, engine.Column{
			Name: rawString(pair.Index(0)),
			Type: columnType,
		})
	}

	if len(out) == 0 {
		return nil, engine.InvalidInputErrorf("Table function '%s' schema cannot be empty", name)
	}
	return out, nil
}

func rawString(value starlark.Value) string {
	if str, ok := value.(starlark.String); ok {
		return string(str)
	}
	return value.String()
}
