package engine

import (
	"math"
	"sync"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/pkg/errors"

	"github.com/cube2222/octostar/octosql"
)

// ArrowStreamProduceFunc creates a fresh record stream from the factory handle.
type ArrowStreamProduceFunc func(factory interface{}) (array.RecordReader, error)

// ArrowStreamSchemaFunc returns the schema of the streams the factory handle produces.
type ArrowStreamSchemaFunc func(factory interface{}) (*arrow.Schema, error)

// ArrowScanBindData is the bind result of arrow_scan.
type ArrowScanBindData struct {
	Factory     interface{}
	Produce     ArrowStreamProduceFunc
	ArrowSchema *arrow.Schema
	Schema      Schema
}

type arrowScanGlobalState struct {
	mutex  sync.Mutex
	reader array.RecordReader
	done   bool
}

func (state *arrowScanGlobalState) MaxThreads() int {
	return math.MaxInt32
}

// nextRecord returns the next non-empty record, retained for the caller, or nil at the end of the stream.
func (state *arrowScanGlobalState) nextRecord() arrow.Record {
	state.mutex.Lock()
	defer state.mutex.Unlock()

	for !state.done {
		if !state.reader.Next() {
			state.done = true
			break
		}
		record := state.reader.Record()
		if record.NumRows() == 0 {
			continue
		}
		record.Retain()
		return record
	}
	return nil
}

func (state *arrowScanGlobalState) Close() error {
	state.reader.Release()
	return nil
}

type arrowScanLocalState struct {
	record arrow.Record
	offset int
}

func (state *arrowScanLocalState) Close() error {
	if state.record != nil {
		state.record.Release()
		state.record = nil
	}
	return nil
}

// ArrowScanFunction is the built-in scan over a columnar record stream.
// It's called with three opaque arguments: the factory handle, an ArrowStreamProduceFunc and an ArrowStreamSchemaFunc.
func ArrowScanFunction() *TableFunction {
	return &TableFunction{
		Name:      "arrow_scan",
		Arguments: []octosql.Type{octosql.Opaque, octosql.Opaque, octosql.Opaque},
		Bind: func(ctx *ClientContext, input *BindInput) (FunctionData, Schema, error) {
			factory := input.Inputs[0].Opaque
			produce, ok := input.Inputs[1].Opaque.(ArrowStreamProduceFunc)
			if !ok {
				return nil, nil, InvalidInputErrorf("arrow_scan: second argument must be a stream produce function, got %T", input.Inputs[1].Opaque)
			}
			getSchema, ok := input.Inputs[2].Opaque.(ArrowStreamSchemaFunc)
			if !ok {
				return nil, nil, InvalidInputErrorf("arrow_scan: third argument must be a schema function, got %T", input.Inputs[2].Opaque)
			}

			arrowSchema, err := getSchema(factory)
			if err != nil {
				return nil, nil, errors.Wrap(err, "couldn't get arrow stream schema")
			}
			schema := make(Schema, arrowSchema.NumFields())
			for i, field := range arrowSchema.Fields() {
				t, err := octosql.TypeFromArrow(field.Type)
				if err != nil {
					return nil, nil, InvalidInputErrorf("arrow_scan: column '%s': %s", field.Name, err)
				}
				schema[i] = Column{Name: field.Name, Type: t}
			}

			bind := &ArrowScanBindData{
				Factory:     factory,
				Produce:     produce,
				ArrowSchema: arrowSchema,
				Schema:      schema,
			}
			return bind, schema, nil
		},
		InitGlobal: func(ctx *ClientContext, input *InitInput) (GlobalState, error) {
			bind := input.BindData.(*ArrowScanBindData)
			reader, err := bind.Produce(bind.Factory)
			if err != nil {
				return nil, errors.Wrap(err, "couldn't produce arrow stream")
			}
			return &arrowScanGlobalState{reader: reader}, nil
		},
		InitLocal: func(ctx *ClientContext, input *InitInput, global GlobalState) (LocalState, error) {
			return &arrowScanLocalState{}, nil
		},
		Scan: func(ctx *ClientContext, input *ScanInput, output *DataChunk) error {
			global := input.GlobalState.(*arrowScanGlobalState)
			local := input.LocalState.(*arrowScanLocalState)
			bind := input.BindData.(*ArrowScanBindData)

			if local.record == nil || int64(local.offset) >= local.record.NumRows() {
				local.Close()
				local.record = global.nextRecord()
				local.offset = 0
				if local.record == nil {
					output.SetCardinality(0)
					return nil
				}
				if int(local.record.NumCols()) != len(bind.Schema) {
					return InvalidInputErrorf("arrow_scan: record has %d columns, stream schema has %d", local.record.NumCols(), len(bind.Schema))
				}
			}

			n := int(local.record.NumRows()) - local.offset
			if n > StandardVectorSize {
				n = StandardVectorSize
			}
			for outIndex := range output.Columns {
				column := local.record.Column(outIndex)
				for row := 0; row < n; row++ {
					value, err := octosql.ValueFromArrow(column, local.offset+row)
					if err != nil {
						return InvalidInputErrorf("arrow_scan: column '%s': %s", bind.Schema[outIndex].Name, err)
					}
					output.SetValue(outIndex, row, value)
				}
			}
			local.offset += n
			output.SetCardinality(n)
			return nil
		},
	}
}
