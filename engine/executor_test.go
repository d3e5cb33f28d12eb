package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octostar/octosql"
)

func openTestConnection(t *testing.T, config Config) *Connection {
	t.Helper()
	db, err := Open(InMemoryPath, config)
	require.NoError(t, err)
	conn, err := db.Connect()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return conn
}

func intColumn(rows [][]octosql.Value) []int {
	out := make([]int, len(rows))
	for i := range rows {
		out[i] = rows[i][0].Int
	}
	return out
}

func TestRange(t *testing.T) {
	tests := []struct {
		name    string
		threads int
		args    []octosql.Value
		named   map[string]octosql.Value
		want    int
		first   int
		last    int
	}{
		{
			name:    "small",
			threads: 1,
			args:    []octosql.Value{octosql.NewInt(0), octosql.NewInt(5)},
			want:    5,
			first:   0,
			last:    4,
		},
		{
			name:    "several chunks single threaded",
			threads: 1,
			args:    []octosql.Value{octosql.NewInt(10), octosql.NewInt(10000)},
			want:    9990,
			first:   10,
			last:    9999,
		},
		{
			name:    "several chunks parallel",
			threads: 4,
			args:    []octosql.Value{octosql.NewInt(0), octosql.NewInt(20000)},
			want:    20000,
			first:   0,
			last:    19999,
		},
		{
			name:    "negative step",
			threads: 2,
			args:    []octosql.Value{octosql.NewInt(10), octosql.NewInt(0)},
			named:   map[string]octosql.Value{"step": octosql.NewInt(-3)},
			want:    4,
			first:   1,
			last:    10,
		},
		{
			name:    "empty",
			threads: 2,
			args:    []octosql.Value{octosql.NewInt(5), octosql.NewInt(5)},
			want:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := openTestConnection(t, Config{Threads: tt.threads})
			result, err := conn.TableFunction(context.Background(), "range", tt.args, tt.named)
			require.NoError(t, err)
			assert.Equal(t, Schema{{Name: "i", Type: octosql.Int}}, result.Schema)

			values := intColumn(result.Rows())
			require.Len(t, values, tt.want)
			if tt.want == 0 {
				return
			}
			min, max := values[0], values[0]
			seen := map[int]bool{}
			for _, v := range values {
				assert.False(t, seen[v], "duplicate value %d", v)
				seen[v] = true
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
			assert.Equal(t, tt.first, min)
			assert.Equal(t, tt.last, max)
		})
	}
}

func TestTableFunctionErrors(t *testing.T) {
	conn := openTestConnection(t, DefaultConfig())
	ctx := context.Background()

	_, err := conn.TableFunction(ctx, "nope", nil, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrorKindCatalog))
	assert.Contains(t, err.Error(), "Table Function with name nope does not exist!")

	_, err = conn.TableFunction(ctx, "range", []octosql.Value{octosql.NewInt(0), octosql.NewInt(3)}, map[string]octosql.Value{"stride": octosql.NewInt(1)})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrorKindBinder))
	assert.Contains(t, err.Error(), `Invalid named parameter "stride" for function range`)

	_, err = conn.TableFunction(ctx, "range", []octosql.Value{octosql.NewInt(0)}, nil)
	assert.True(t, IsKind(err, ErrorKindBinder))

	_, err = conn.TableFunction(ctx, "range", []octosql.Value{octosql.NewString("a"), octosql.NewInt(3)}, nil)
	assert.True(t, IsKind(err, ErrorKindBinder))

	_, err = conn.TableFunction(ctx, "range", []octosql.Value{octosql.NewInt(0), octosql.NewInt(3)}, map[string]octosql.Value{"step": octosql.NewInt(0)})
	assert.True(t, IsKind(err, ErrorKindInvalidInput))
}

type closeCounter struct {
	closed *int32
}

func (c *closeCounter) Close() error {
	atomic.AddInt32(c.closed, 1)
	return nil
}

func TestGlobalStateClosedOnEveryPath(t *testing.T) {
	tests := []struct {
		name    string
		failAt  int
		wantErr bool
	}{
		{name: "success", failAt: -1},
		{name: "scan failure", failAt: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := openTestConnection(t, DefaultConfig())
			var closed int32
			calls := 0
			require.NoError(t, conn.CreateTableFunction(&TableFunction{
				Name: "counted",
				Bind: func(ctx *ClientContext, input *BindInput) (FunctionData, Schema, error) {
					return nil, Schema{{Name: "x", Type: octosql.Int}}, nil
				},
				InitGlobal: func(ctx *ClientContext, input *InitInput) (GlobalState, error) {
					return &closeCounter{closed: &closed}, nil
				},
				Scan: func(ctx *ClientContext, input *ScanInput, output *DataChunk) error {
					defer func() { calls++ }()
					if calls == tt.failAt {
						return InvalidInputErrorf("boom")
					}
					if calls < 3 {
						output.SetValue(0, 0, octosql.NewInt(calls))
						output.SetCardinality(1)
					}
					return nil
				},
			}))

			result, err := conn.TableFunction(context.Background(), "counted", nil, nil)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, IsKind(err, ErrorKindInvalidInput))
			} else {
				require.NoError(t, err)
				assert.Equal(t, []int{0, 1, 2}, intColumn(result.Rows()))
			}
			assert.Equal(t, int32(1), atomic.LoadInt32(&closed))
		})
	}
}

func TestCancellation(t *testing.T) {
	conn := openTestConnection(t, DefaultConfig())
	require.NoError(t, conn.CreateTableFunction(&TableFunction{
		Name: "endless",
		Bind: func(ctx *ClientContext, input *BindInput) (FunctionData, Schema, error) {
			return nil, Schema{{Name: "x", Type: octosql.Int}}, nil
		},
		Scan: func(ctx *ClientContext, input *ScanInput, output *DataChunk) error {
			output.SetValue(0, 0, octosql.NewInt(1))
			output.SetCardinality(1)
			return nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.TableFunction(ctx, "endless", nil, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrorKindInterrupt))
}

func TestBindCanDisableProgressBar(t *testing.T) {
	conn := openTestConnection(t, Config{Threads: 1, EnableProgressBar: true})
	var seen ClientConfig
	require.NoError(t, conn.CreateTableFunction(&TableFunction{
		Name: "quiet",
		Bind: func(ctx *ClientContext, input *BindInput) (FunctionData, Schema, error) {
			ctx.DisableProgressBar("not supported")
			return nil, Schema{{Name: "x", Type: octosql.Int}}, nil
		},
		InitGlobal: func(ctx *ClientContext, input *InitInput) (GlobalState, error) {
			seen = ctx.Config
			return nil, nil
		},
		Scan: func(ctx *ClientContext, input *ScanInput, output *DataChunk) error {
			return nil
		},
	}))

	_, err := conn.TableFunction(context.Background(), "quiet", nil, nil)
	require.NoError(t, err)
	assert.False(t, seen.EnableProgressBar)
	assert.Equal(t, "not supported", seen.ProgressBarDisableReason)
	assert.True(t, conn.Database().Config().EnableProgressBar)
}

func TestClosedConnection(t *testing.T) {
	conn := openTestConnection(t, DefaultConfig())
	hookCalls := 0
	conn.OnClose(func() error {
		hookCalls++
		return nil
	})
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, hookCalls)
	assert.True(t, conn.IsClosed())

	_, err := conn.TableFunction(context.Background(), "range", []octosql.Value{octosql.NewInt(0), octosql.NewInt(1)}, nil)
	assert.True(t, IsKind(err, ErrorKindConnection))
	assert.Contains(t, err.Error(), "Connection already closed!")
}
