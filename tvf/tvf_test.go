package tvf

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
	"github.com/cube2222/octostar/octosql"
)

const testScript = `
def numbers(n, prefix = "n"):
    return [(i, prefix + str(i)) for i in range(n)]

def not_iterable():
    return 42

def nothing():
    return None

def broken(n):
    rows = [(i, str(i)) for i in range(n)]
    rows[n - 2] = ("oops", "x")
    return rows

def raises():
    fail("something bad")

def table(n, batch):
    return arrow_table({"id": list(range(n)), "name": [str(i) for i in range(n)]}, batch_size = batch)

def wide_table():
    return arrow_table({"a": [1], "b": ["x"], "c": [True]})

def wrong_type_table():
    return arrow_table({"id": ["x"], "name": ["y"]})
`

type fixture struct {
	it        *interp.Interpreter
	registrar *Registrar
	conn      *engine.Connection
	globals   starlark.StringDict
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	it, err := interp.New(interp.Config{})
	require.NoError(t, err)
	t.Cleanup(it.Close)

	globals, err := it.ExecFile(context.Background(), "functions.star", testScript)
	require.NoError(t, err)

	db, err := engine.Open(engine.InMemoryPath, engine.Config{Threads: 4})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn, err := db.Connect()
	require.NoError(t, err)

	return &fixture{
		it:        it,
		registrar: NewRegistrar(it),
		conn:      conn,
		globals:   globals,
	}
}

func schemaValue(pairs ...[2]string) starlark.Value {
	items := make([]starlark.Value, len(pairs))
	for i, pair := range pairs {
		items[i] = starlark.NewList([]starlark.Value{starlark.String(pair[0]), starlark.String(pair[1])})
	}
	return starlark.NewList(items)
}

var idNameSchema = schemaValue([2]string{"id", "BIGINT"}, [2]string{"name", "VARCHAR"})

func (f *fixture) register(t *testing.T, name, function string, parameters []string, schema starlark.Value, variant interface{}) error {
	t.Helper()
	return f.it.Lock().With(func() error {
		_, err := f.registrar.Register(f.conn, name, f.globals[function].(starlark.Callable), parameters, schema, variant)
		return err
	})
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		value   interface{}
		want    Variant
		wantErr string
	}{
		{value: "TUPLES", want: VariantRowIter},
		{value: "tuples", want: VariantRowIter},
		{value: "Tuples", want: VariantRowIter},
		{value: "", want: VariantRowIter},
		{value: 0, want: VariantRowIter},
		{value: nil, want: VariantRowIter},
		{value: starlark.None, want: VariantRowIter},
		{value: starlark.String("tuples"), want: VariantRowIter},
		{value: starlark.MakeInt(0), want: VariantRowIter},
		{value: "arrow_table", want: VariantColumnar},
		{value: "ARROW_TABLE", want: VariantColumnar},
		{value: 1, want: VariantColumnar},
		{value: starlark.MakeInt(1), want: VariantColumnar},
		{value: VariantColumnar, want: VariantColumnar},
		{value: "pandas", wantErr: "'pandas' is not a recognized type for 'tvf_type'"},
		{value: 2, wantErr: "'2' is not a recognized type for 'tvf_type'"},
		{value: starlark.MakeInt(-1), wantErr: "'-1' is not a recognized type for 'tvf_type'"},
		{value: starlark.Float(1), wantErr: "is not a recognized type for 'tvf_type'"},
	}
	for _, tt := range tests {
		got, err := ParseVariant(tt.value)
		if tt.wantErr != "" {
			require.Error(t, err, "%v", tt.value)
			assert.True(t, engine.IsKind(err, engine.ErrorKindInvalidInput))
			assert.Contains(t, err.Error(), tt.wantErr)
			continue
		}
		require.NoError(t, err, "%v", tt.value)
		assert.Equal(t, tt.want, got, "%v", tt.value)
	}
}

func TestParseSchema(t *testing.T) {
	tests := []struct {
		name    string
		schema  starlark.Value
		want    engine.Schema
		wantErr string
	}{
		{
			name:   "pairs",
			schema: schemaValue([2]string{"x", "int"}, [2]string{"y", "varchar"}),
			want:   engine.Schema{{Name: "x", Type: octosql.Int}, {Name: "y", Type: octosql.String}},
		},
		{
			name:   "tuples",
			schema: starlark.Tuple{starlark.Tuple{starlark.String("x"), starlark.String("DOUBLE")}},
			want:   engine.Schema{{Name: "x", Type: octosql.Float}},
		},
		{
			name:    "none",
			schema:  starlark.None,
			wantErr: "Table functions require a schema.",
		},
		{
			name:    "empty",
			schema:  starlark.NewList(nil),
			wantErr: "Table function 'f' schema cannot be empty",
		},
		{
			name:    "bare string",
			schema:  starlark.NewList([]starlark.Value{starlark.String("x")}),
			wantErr: "Invalid schema format: expected [name, type] pairs, got string 'x'",
		},
		{
			name:    "short pair",
			schema:  starlark.NewList([]starlark.Value{starlark.NewList([]starlark.Value{starlark.String("x")})}),
			wantErr: "Invalid schema format: each schema item must be a [name, type] pair",
		},
		{
			name:    "not indexable",
			schema:  starlark.NewList([]starlark.Value{starlark.MakeInt(3)}),
			wantErr: "Invalid schema format: each schema item must be a [name, type] pair",
		},
		{
			name:    "unknown type",
			schema:  schemaValue([2]string{"x", "BLOB"}),
			wantErr: "Type with name BLOB does not exist!",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchema("f", tt.schema)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, engine.IsKind(err, engine.ErrorKindInvalidInput))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmptySchemaAlwaysFails(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "numbers", "x y"} {
		for _, function := range []string{"numbers", "table", "nothing"} {
			err := f.register(t, name, function, nil, starlark.NewList(nil), "tuples")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "Table function '"+name+"' schema cannot be empty")
		}
	}
}

func TestRegisterAndScan(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.register(t, "numbers", "numbers", []string{"prefix"}, idNameSchema, "tuples"))

	result, err := f.conn.TableFunction(context.Background(), "numbers", []octosql.Value{octosql.NewInt(3)}, map[string]octosql.Value{
		"prefix": octosql.NewString("row"),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.Schema{{Name: "id", Type: octosql.Int}, {Name: "name", Type: octosql.String}}, result.Schema)
	assert.Equal(t, [][]octosql.Value{
		{octosql.NewInt(0), octosql.NewString("row0")},
		{octosql.NewInt(1), octosql.NewString("row1")},
		{octosql.NewInt(2), octosql.NewString("row2")},
	}, result.Rows())

	_, err = f.conn.TableFunction(context.Background(), "numbers", []octosql.Value{octosql.NewInt(3)}, map[string]octosql.Value{
		"suffix": octosql.NewString("row"),
	})
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.ErrorKindBinder))
	assert.Contains(t, err.Error(), `Invalid named parameter "suffix" for function numbers`)
}

func TestRegistrationLifecycle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.register(t, "numbers", "numbers", nil, idNameSchema, nil))

	err := f.register(t, "numbers", "numbers", nil, idNameSchema, nil)
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.ErrorKindNotImplemented))
	assert.Contains(t, err.Error(), "A table function by the name of 'numbers' is already registered, unregister it first")

	err = f.registrar.Unregister(f.conn, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No table function by the name of 'missing'")

	require.NoError(t, f.registrar.Unregister(f.conn, "numbers"))
	_, err = f.conn.TableFunction(context.Background(), "numbers", []octosql.Value{octosql.NewInt(1)}, nil)
	assert.True(t, engine.IsKind(err, engine.ErrorKindCatalog))

	require.NoError(t, f.register(t, "numbers", "numbers", nil, idNameSchema, nil))
	require.NoError(t, f.register(t, "other", "numbers", nil, idNameSchema, nil))
	assert.Equal(t, []string{"numbers", "other"}, f.registrar.Registered(f.conn))

	db := f.conn.Database()
	require.NoError(t, f.conn.Close())
	assert.Equal(t, []string{"arrow_scan", "range"}, db.Catalog().ListTableFunctions())
	assert.Empty(t, f.registrar.Registered(f.conn))
}

func TestInvocationErrors(t *testing.T) {
	tests := []struct {
		function string
		args     []octosql.Value
		wantErr  string
	}{
		{function: "nothing", wantErr: "Table function 'f' returned None, expected iterable or Arrow table"},
		{function: "raises", wantErr: "Table function 'f' raised an error: "},
		{function: "not_iterable", wantErr: "Table function 'f' returned non-iterable result: 'int' object is not iterable"},
		{function: "broken", args: []octosql.Value{octosql.NewInt(5)}, wantErr: "Table function 'f' returned invalid data: column 0 ('id')"},
	}
	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.register(t, "f", tt.function, nil, idNameSchema, "tuples"))
			_, err := f.conn.TableFunction(context.Background(), "f", tt.args, nil)
			require.Error(t, err)
			assert.True(t, engine.IsKind(err, engine.ErrorKindInvalidInput))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func (f *fixture) bindDirect(t *testing.T, function string, schema starlark.Value, args ...octosql.Value) *bindData {
	t.Helper()
	var parsed engine.Schema
	require.NoError(t, f.it.Lock().With(func() error {
		var err error
		parsed, err = ParseSchema(function, schema)
		return err
	}))
	descriptor := &Descriptor{
		Name:     function,
		Callable: f.globals[function].(starlark.Callable),
		Schema:   parsed,
		interp:   f.it,
	}
	data, _, err := bind(&engine.ClientContext{}, &engine.BindInput{
		Function: &engine.TableFunction{Name: function},
		Info:     descriptor,
		Inputs:   args,
	})
	require.NoError(t, err)
	return data.(*bindData)
}

func TestRowIterScanSequence(t *testing.T) {
	tests := []struct {
		name  string
		count int
	}{
		{name: "empty", count: 0},
		{name: "one", count: 1},
		{name: "exactly a chunk", count: engine.StandardVectorSize},
		{name: "several chunks", count: 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			bd := f.bindDirect(t, "numbers", idNameSchema, octosql.NewInt(tt.count))
			ctx := &engine.ClientContext{}
			input := &engine.InitInput{BindData: bd, ColumnIDs: []int{0, 1}}

			global, err := rowIterVariant{}.InitGlobal(ctx, input)
			require.NoError(t, err)
			state := global.(*rowIterGlobalState)
			defer state.Close()

			total := 0
			for {
				chunk := engine.NewDataChunk(bd.schema.Types())
				require.NoError(t, rowIterVariant{}.Scan(ctx, &engine.ScanInput{BindData: bd, GlobalState: global}, chunk))
				assert.LessOrEqual(t, chunk.Cardinality(), engine.StandardVectorSize)
				for i := 0; i < chunk.Cardinality(); i++ {
					assert.Equal(t, total+i, chunk.Value(0, i).Int)
				}
				total += chunk.Cardinality()
				if chunk.Cardinality() == 0 {
					break
				}
			}
			assert.Equal(t, tt.count, total)
			assert.True(t, state.exhausted)

			chunk := engine.NewDataChunk(bd.schema.Types())
			require.NoError(t, rowIterVariant{}.Scan(ctx, &engine.ScanInput{BindData: bd, GlobalState: global}, chunk))
			assert.Equal(t, 0, chunk.Cardinality())
		})
	}
}

func TestRowIterNonIterableFailsInit(t *testing.T) {
	f := newFixture(t)
	bd := f.bindDirect(t, "not_iterable", idNameSchema)
	global, err := rowIterVariant{}.InitGlobal(&engine.ClientContext{}, &engine.InitInput{BindData: bd})
	require.Error(t, err)
	assert.Nil(t, global)
	assert.Contains(t, err.Error(), "returned non-iterable result")
}

func TestRowIterFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	bd := f.bindDirect(t, "broken", idNameSchema, octosql.NewInt(10))
	ctx := &engine.ClientContext{}
	global, err := rowIterVariant{}.InitGlobal(ctx, &engine.InitInput{BindData: bd})
	require.NoError(t, err)
	defer global.(*rowIterGlobalState).Close()

	chunk := engine.NewDataChunk(bd.schema.Types())
	err = rowIterVariant{}.Scan(ctx, &engine.ScanInput{BindData: bd, GlobalState: global}, chunk)
	require.Error(t, err)
	assert.Equal(t, 0, chunk.Cardinality())
	for row := 0; row < 9; row++ {
		assert.Equal(t, octosql.ZeroValue, chunk.Value(0, row))
	}
}

func TestBindDisablesProgressBarAndRequiresInfo(t *testing.T) {
	ctx := &engine.ClientContext{Config: engine.ClientConfig{EnableProgressBar: true}}
	_, _, err := bind(ctx, &engine.BindInput{Function: &engine.TableFunction{Name: "ghost"}})
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.ErrorKindInternal))
	assert.Contains(t, err.Error(), "Table function 'ghost' missing function info")

	_, schema, err := bind(ctx, &engine.BindInput{
		Function: &engine.TableFunction{Name: "f"},
		Info:     &Descriptor{Name: "f", Schema: engine.Schema{{Name: "x", Type: octosql.Int}}},
	})
	require.NoError(t, err)
	assert.Len(t, schema, 1)
	assert.False(t, ctx.Config.EnableProgressBar)
	assert.Equal(t, "Table Valued Functions do not support the progress bar", ctx.Config.ProgressBarDisableReason)
}

func TestColumnar(t *testing.T) {
	tests := []struct {
		name  string
		rows  int
		batch int
	}{
		{name: "single batch", rows: 10, batch: 10},
		{name: "many batches", rows: 10000, batch: 999},
		{name: "big batches", rows: 9000, batch: 4500},
		{name: "empty", rows: 0, batch: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.register(t, "table", "table", nil, idNameSchema, "arrow_table"))

			result, err := f.conn.TableFunction(context.Background(), "table", []octosql.Value{octosql.NewInt(tt.rows), octosql.NewInt(tt.batch)}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, result.RowCount())
			for _, chunk := range result.Chunks {
				assert.Equal(t, 2, chunk.ColumnCount())
			}
			seen := make(map[int]bool, tt.rows)
			for _, row := range result.Rows() {
				seen[row[0].Int] = true
				assert.Equal(t, strconv.Itoa(row[0].Int), row[1].Str)
			}
			assert.Len(t, seen, tt.rows)
		})
	}
}

func TestColumnarErrors(t *testing.T) {
	tests := []struct {
		function string
		args     []octosql.Value
		wantErr  string
	}{
		{function: "numbers", args: []octosql.Value{octosql.NewInt(1)}, wantErr: "Table function 'f' returned list, expected an arrow table"},
		{function: "wide_table", wantErr: "Table function 'f' schema mismatch: arrow table has 3 columns but 2 were declared"},
		{function: "wrong_type_table", wantErr: "Table function 'f' schema mismatch: column 0 ('id') has type VARCHAR but BIGINT was declared"},
		{function: "nothing", wantErr: "Table function 'f' returned None, expected iterable or Arrow table"},
	}
	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.register(t, "f", tt.function, nil, idNameSchema, 1))
			_, err := f.conn.TableFunction(context.Background(), "f", tt.args, nil)
			require.Error(t, err)
			assert.True(t, engine.IsKind(err, engine.ErrorKindInvalidInput))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestColumnarNamesMayDiffer(t *testing.T) {
	f := newFixture(t)
	schema := schemaValue([2]string{"key", "BIGINT"}, [2]string{"label", "VARCHAR"})
	require.NoError(t, f.register(t, "t", "table", nil, schema, "arrow_table"))

	result, err := f.conn.TableFunction(context.Background(), "t", []octosql.Value{octosql.NewInt(3), octosql.NewInt(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "label"}, result.Schema.Names())
	assert.Equal(t, 3, result.RowCount())
}
