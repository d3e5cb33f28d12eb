package tvf

import (
	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/pkg/errors"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
	"github.com/cube2222/octostar/octosql"
)

const arrowScanFunctionName = "arrow_scan"

type columnarVariant struct{}

// columnarGlobalState delegates scanning to the engine's arrow_scan, bound to the callable's result.
type columnarGlobalState struct {
	interp *interp.Interpreter
	// result keeps the callable's result alive for as long as the stream may be produced from it.
	result interp.ArrowStreamer

	scan       *engine.TableFunction
	scanBind   engine.FunctionData
	scanGlobal engine.GlobalState
	columnIDs  []int
}

func (state *columnarGlobalState) MaxThreads() int {
	if parallel, ok := state.scanGlobal.(engine.ParallelGlobalState); ok {
		return parallel.MaxThreads()
	}
	return 1
}

func (state *columnarGlobalState) Close() error {
	err := closeState(state.scanGlobal)
	state.interp.Lock().With(func() error {
		state.result = nil
		return nil
	})
	return err
}

type columnarLocalState struct {
	scanLocal engine.LocalState
}

func (state *columnarLocalState) Close() error {
	return closeState(state.scanLocal)
}

// streamProducer builds the arrow_scan callbacks, which enter the runtime under the lock.
func streamProducer(it *interp.Interpreter) (engine.ArrowStreamProduceFunc, engine.ArrowStreamSchemaFunc) {
	produce := func(factory interface{}) (reader array.RecordReader, err error) {
		err = it.Lock().With(func() error {
			reader, err = factory.(interp.ArrowStreamer).ArrowStream()
			return err
		})
		return reader, err
	}
	getSchema := func(factory interface{}) (schema *arrow.Schema, err error) {
		it.Lock().With(func() error {
			schema = factory.(interp.ArrowStreamer).ArrowSchema()
			return nil
		})
		return schema, nil
	}
	return produce, getSchema
}

func (columnarVariant) InitGlobal(ctx *engine.ClientContext, input *engine.InitInput) (engine.GlobalState, error) {
	bd := input.BindData.(*bindData)
	result, err := invoke(bd)
	if err != nil {
		return nil, err
	}

	it := bd.descriptor.interp
	var streamer interp.ArrowStreamer
	it.Lock().With(func() error {
		streamer, _ = result.(interp.ArrowStreamer)
		if streamer == nil {
			err = engine.InvalidInputErrorf("Table function '%s' returned %s, expected an arrow table", bd.name, result.Type())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	scan, err := ctx.Connection.Database().Catalog().GetTableFunction(arrowScanFunctionName)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't find arrow scan")
	}
	produce, getSchema := streamProducer(it)
	scanBind, scanSchema, err := scan.Bind(ctx, &engine.BindInput{
		Function: scan,
		Inputs: []octosql.Value{
			octosql.NewOpaque(streamer),
			octosql.NewOpaque(produce),
			octosql.NewOpaque(getSchema),
		},
	})
	if err != nil {
		return nil, err
	}
	if err := checkSchema(bd.name, bd.schema, scanSchema); err != nil {
		return nil, err
	}

	columnIDs := make([]int, len(scanSchema))
	for i := range columnIDs {
		columnIDs[i] = i
	}
	scanGlobal, err := scan.InitGlobal(ctx, &engine.InitInput{
		BindData:  scanBind,
		ColumnIDs: columnIDs,
	})
	if err != nil {
		return nil, err
	}

	return &columnarGlobalState{
		interp:     it,
		result:     streamer,
		scan:       scan,
		scanBind:   scanBind,
		scanGlobal: scanGlobal,
		columnIDs:  columnIDs,
	}, nil
}

// checkSchema compares the schema of the produced stream with the declared one. Column names may differ.
func checkSchema(name string, declared, produced engine.Schema) error {
	if len(produced) != len(declared) {
		return engine.InvalidInputErrorf("Table function '%s' schema mismatch: arrow table has %d columns but %d were declared", name, len(produced), len(declared))
	}
	for i := range declared {
		if produced[i].Type.Is(declared[i].Type) == octosql.TypeRelationIsnt {
			return engine.InvalidInputErrorf("Table function '%s' schema mismatch: column %d ('%s') has type %s but %s was declared", name, i, produced[i].Name, produced[i].Type, declared[i].Type)
		}
	}
	return nil
}

func (columnarVariant) InitLocal(ctx *engine.ClientContext, input *engine.InitInput, global engine.GlobalState) (engine.LocalState, error) {
	state := global.(*columnarGlobalState)
	if state.scan.InitLocal == nil {
		return &columnarLocalState{}, nil
	}
	scanLocal, err := state.scan.InitLocal(ctx, &engine.InitInput{
		BindData:  state.scanBind,
		ColumnIDs: state.columnIDs,
	}, state.scanGlobal)
	if err != nil {
		return nil, err
	}
	return &columnarLocalState{scanLocal: scanLocal}, nil
}

func (columnarVariant) Scan(ctx *engine.ClientContext, input *engine.ScanInput, output *engine.DataChunk) error {
	global := input.GlobalState.(*columnarGlobalState)
	local := input.LocalState.(*columnarLocalState)
	return global.scan.Scan(ctx, &engine.ScanInput{
		BindData:    global.scanBind,
		LocalState:  local.scanLocal,
		GlobalState: global.scanGlobal,
	}, output)
}

func closeState(state interface{}) error {
	if closer, ok := state.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
