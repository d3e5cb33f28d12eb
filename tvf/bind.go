package tvf

import (
	"sort"

	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
	"github.com/cube2222/octostar/octosql"
)

const progressBarDisableReason = "Table Valued Functions do not support the progress bar"

// bindData is the immutable result of binding a callable-backed table function.
type bindData struct {
	descriptor *Descriptor
	name       string
	positional []octosql.Value
	named      map[string]octosql.Value
	schema     engine.Schema
}

func bind(ctx *engine.ClientContext, input *engine.BindInput) (engine.FunctionData, engine.Schema, error) {
	descriptor, ok := input.Info.(*Descriptor)
	if !ok || descriptor == nil {
		return nil, nil, engine.InternalErrorf("Table function '%s' missing function info", input.Function.Name)
	}
	ctx.DisableProgressBar(progressBarDisableReason)

	named := make(map[string]octosql.Value, len(input.NamedParameters))
	for k, v := range input.NamedParameters {
		named[k] = v
	}
	return &bindData{
		descriptor: descriptor,
		name:       input.Function.Name,
		positional: append([]octosql.Value(nil), input.Inputs...),
		named:      named,
		schema:     descriptor.Schema,
	}, descriptor.Schema, nil
}

// invoke calls the callable with the bound arguments, holding the lock for the duration of the call.
func invoke(bd *bindData) (starlark.Value, error) {
	it := bd.descriptor.interp
	release := it.Lock().Acquire()
	defer release()

	args := make(starlark.Tuple, len(bd.positional))
	for i := range bd.positional {
		arg, err := interp.FromValue(bd.positional[i])
		if err != nil {
			return nil, engine.InvalidInputErrorf("Table function '%s' argument %d: %s", bd.name, i, err)
		}
		args[i] = arg
	}

	names := make([]string, 0, len(bd.named))
	for name := range bd.named {
		names = append(names, name)
	}
	sort.Strings(names)
	kwargs := make([]starlark.Tuple, len(names))
	for i, name := range names {
		arg, err := interp.FromValue(bd.named[name])
		if err != nil {
			return nil, engine.InvalidInputErrorf("Table function '%s' argument %s: %s", bd.name, name, err)
		}
		kwargs[i] = starlark.Tuple{starlark.String(name), arg}
	}

	result, err := it.Call(bd.descriptor.Callable, args, kwargs)
	if err != nil {
		return nil, engine.InvalidInputErrorf("Table function '%s' raised an error: %s", bd.name, err)
	}
	if result == nil || result == starlark.None {
		return nil, engine.InvalidInputErrorf("Table function '%s' returned None, expected iterable or Arrow table", bd.name)
	}
	return result, nil
}
