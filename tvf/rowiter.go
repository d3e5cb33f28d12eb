package tvf

import (
	"github.com/pkg/errors"
	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
)

type rowIterVariant struct{}

// rowIterGlobalState owns the iterator over the callable's result.
// It's scanned by a single worker, since it doesn't implement engine.ParallelGlobalState.
type rowIterGlobalState struct {
	interp    *interp.Interpreter
	iterator  starlark.Iterator
	exhausted bool
}

// advance returns the next element, or false at the end of the sequence. The caller must hold the lock.
func (state *rowIterGlobalState) advance() (starlark.Value, bool) {
	if state.exhausted {
		return nil, false
	}
	var element starlark.Value
	if !state.iterator.Next(&element) {
		state.markExhausted()
		return nil, false
	}
	return element, true
}

func (state *rowIterGlobalState) markExhausted() {
	state.exhausted = true
	if state.iterator != nil {
		state.iterator.Done()
		state.iterator = nil
	}
}

func (state *rowIterGlobalState) Close() error {
	return state.interp.Lock().With(func() error {
		state.markExhausted()
		return nil
	})
}

func (rowIterVariant) InitGlobal(ctx *engine.ClientContext, input *engine.InitInput) (engine.GlobalState, error) {
	bd := input.BindData.(*bindData)
	result, err := invoke(bd)
	if err != nil {
		return nil, err
	}

	it := bd.descriptor.interp
	release := it.Lock().Acquire()
	defer release()

	iterator := starlark.Iterate(result)
	if iterator == nil {
		return nil, engine.InvalidInputErrorf("Table function '%s' returned non-iterable result: '%s' object is not iterable", bd.name, result.Type())
	}
	return &rowIterGlobalState{
		interp:   it,
		iterator: iterator,
	}, nil
}

func (rowIterVariant) InitLocal(ctx *engine.ClientContext, input *engine.InitInput, global engine.GlobalState) (engine.LocalState, error) {
	return nil, nil
}

// Scan converts up to a chunk worth of rows. A conversion failure discards the whole batch.
func (rowIterVariant) Scan(ctx *engine.ClientContext, input *engine.ScanInput, output *engine.DataChunk) error {
	bd := input.BindData.(*bindData)
	state := input.GlobalState.(*rowIterGlobalState)
	if state.exhausted {
		output.SetCardinality(0)
		return nil
	}

	release := state.interp.Lock().Acquire()
	defer release()

	count := 0
	for count < engine.StandardVectorSize {
		element, ok := state.advance()
		if !ok {
			break
		}
		if err := convertRow(element, bd, output, count); err != nil {
			discard(output, count+1)
			return engine.InvalidInputErrorf("Table function '%s' returned invalid data: %s", bd.name, err)
		}
		count++
	}
	output.SetCardinality(count)
	return nil
}

func convertRow(element starlark.Value, bd *bindData, output *engine.DataChunk, row int) error {
	if _, ok := element.(starlark.String); ok {
		return errors.Errorf("row must be a sequence, got string")
	}
	values, ok := element.(starlark.Indexable)
	if !ok {
		return errors.Errorf("row must be a sequence, got %s", element.Type())
	}
	if values.Len() < len(bd.schema) {
		return errors.Errorf("row has %d values, expected %d", values.Len(), len(bd.schema))
	}
	for col := range bd.schema {
		value, err := interp.ToValue(values.Index(col), bd.schema[col].Type)
		if err != nil {
			return errors.Errorf("column %d ('%s'): %s", col, bd.schema[col].Name, err)
		}
		output.SetValue(col, row, value)
	}
	return nil
}

// discard clears the first n rows of a chunk, leaving it empty.
func discard(output *engine.DataChunk, n int) {
	output.SetCardinality(n)
	output.Reset()
}
