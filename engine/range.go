package engine

import (
	"sync"

	"github.com/cube2222/octostar/octosql"
)

func builtinTableFunctions() []*TableFunction {
	return []*TableFunction{
		RangeFunction(),
		ArrowScanFunction(),
	}
}

type rangeBindData struct {
	start, end, step int
}

type rangeGlobalState struct {
	mutex   sync.Mutex
	bind    *rangeBindData
	current int
}

// MaxThreads gives every worker at least a full chunk.
func (state *rangeGlobalState) MaxThreads() int {
	count := state.bind.count()
	return count/StandardVectorSize + 1
}

// next hands out the start of the next chunk-sized slice of the range.
func (state *rangeGlobalState) next() (int, int, bool) {
	state.mutex.Lock()
	defer state.mutex.Unlock()

	total := state.bind.count()
	if state.current >= total {
		return 0, 0, false
	}
	from := state.current
	n := total - from
	if n > StandardVectorSize {
		n = StandardVectorSize
	}
	state.current += n
	return from, n, true
}

func (bind *rangeBindData) count() int {
	if bind.step > 0 && bind.start < bind.end {
		return (bind.end - bind.start + bind.step - 1) / bind.step
	}
	if bind.step < 0 && bind.start > bind.end {
		return (bind.start - bind.end - bind.step - 1) / -bind.step
	}
	return 0
}

// RangeFunction is range(start, up_to, step := 1), producing a single column "i".
func RangeFunction() *TableFunction {
	return &TableFunction{
		Name:      "range",
		Arguments: []octosql.Type{octosql.Int, octosql.Int},
		NamedParameters: map[string]octosql.Type{
			"step": octosql.Int,
		},
		Bind: func(ctx *ClientContext, input *BindInput) (FunctionData, Schema, error) {
			bind := &rangeBindData{
				start: input.Inputs[0].Int,
				end:   input.Inputs[1].Int,
				step:  1,
			}
			if step, ok := input.NamedParameters["step"]; ok {
				if step.Type.TypeID != octosql.TypeIDInt {
					return nil, nil, BinderErrorf("range step must be an integer, got %s", step.Type)
				}
				bind.step = step.Int
			}
			if bind.step == 0 {
				return nil, nil, InvalidInputErrorf("range step cannot be 0")
			}
			return bind, Schema{{Name: "i", Type: octosql.Int}}, nil
		},
		InitGlobal: func(ctx *ClientContext, input *InitInput) (GlobalState, error) {
			return &rangeGlobalState{bind: input.BindData.(*rangeBindData)}, nil
		},
		InitLocal: func(ctx *ClientContext, input *InitInput, global GlobalState) (LocalState, error) {
			return nil, nil
		},
		Scan: func(ctx *ClientContext, input *ScanInput, output *DataChunk) error {
			state := input.GlobalState.(*rangeGlobalState)
			from, n, ok := state.next()
			if !ok {
				output.SetCardinality(0)
				return nil
			}
			bind := state.bind
			for i := 0; i < n; i++ {
				output.SetValue(0, i, octosql.NewInt(bind.start+(from+i)*bind.step))
			}
			output.SetCardinality(n)
			return nil
		},
	}
}
