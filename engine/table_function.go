package engine

import (
	"io"
	"sort"

	"github.com/cube2222/octostar/octosql"
)

// FunctionInfo is the registration payload attached to a catalog entry.
type FunctionInfo interface{}

// FunctionData is produced by Bind and is immutable afterwards.
type FunctionData interface{}

// GlobalState is created once per physical execution of a table function.
// If it implements io.Closer, it is closed when the execution ends, on every path.
type GlobalState interface{}

// ParallelGlobalState can be implemented by global states of functions with an InitLocal,
// to let the executor scan with more than one worker.
type ParallelGlobalState interface {
	MaxThreads() int
}

// LocalState is created once per scanning worker. If it implements io.Closer, it's closed
// when the worker finishes.
type LocalState interface{}

type Column struct {
	Name string
	Type octosql.Type
}

type Schema []Column

func (schema Schema) Types() []octosql.Type {
	out := make([]octosql.Type, len(schema))
	for i := range schema {
		out[i] = schema[i].Type
	}
	return out
}

func (schema Schema) Names() []string {
	out := make([]string, len(schema))
	for i := range schema {
		out[i] = schema[i].Name
	}
	return out
}

type BindInput struct {
	Function        *TableFunction
	Info            FunctionInfo
	Inputs          []octosql.Value
	NamedParameters map[string]octosql.Value
}

type InitInput struct {
	BindData FunctionData
	// ColumnIDs are the projected columns, in output order.
	ColumnIDs []int
}

type ScanInput struct {
	BindData    FunctionData
	LocalState  LocalState
	GlobalState GlobalState
}

type BindFunc func(ctx *ClientContext, input *BindInput) (FunctionData, Schema, error)
type InitGlobalFunc func(ctx *ClientContext, input *InitInput) (GlobalState, error)
type InitLocalFunc func(ctx *ClientContext, input *InitInput, global GlobalState) (LocalState, error)

// ScanFunc fills the output chunk with the next rows. Setting the cardinality to 0 signals the end of the stream.
type ScanFunc func(ctx *ClientContext, input *ScanInput, output *DataChunk) error

// TableFunction is a catalog entry describing a table-producing source.
type TableFunction struct {
	Name string
	// Arguments are the required positional arguments.
	Arguments []octosql.Type
	// Varargs, when set, accepts any number of additional positional arguments of this type.
	Varargs         *octosql.Type
	NamedParameters map[string]octosql.Type

	Bind       BindFunc
	InitGlobal InitGlobalFunc
	InitLocal  InitLocalFunc
	Scan       ScanFunc

	Info FunctionInfo
}

func (tf *TableFunction) checkArguments(positional []octosql.Value, named map[string]octosql.Value) error {
	if len(positional) < len(tf.Arguments) || (tf.Varargs == nil && len(positional) > len(tf.Arguments)) {
		return BinderErrorf("table function %s expects %d positional arguments, got %d", tf.Name, len(tf.Arguments), len(positional))
	}
	for i := range tf.Arguments {
		if positional[i].Type.Is(tf.Arguments[i]) == octosql.TypeRelationIsnt {
			return BinderErrorf("table function %s argument %d has type %s, expected %s", tf.Name, i, positional[i].Type, tf.Arguments[i])
		}
	}

	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := tf.NamedParameters[name]; !ok {
			return BinderErrorf("Invalid named parameter \"%s\" for function %s", name, tf.Name)
		}
	}
	return nil
}

func closeState(state interface{}) error {
	if closer, ok := state.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
