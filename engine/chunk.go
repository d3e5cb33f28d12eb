package engine

import (
	"github.com/cube2222/octostar/octosql"
)

// StandardVectorSize is the maximum number of rows a single Scan call may produce.
const StandardVectorSize = 2048

// DataChunk is a columnar batch of at most StandardVectorSize rows.
// Scan functions fill it in place and set its cardinality.
type DataChunk struct {
	Types       []octosql.Type
	Columns     [][]octosql.Value
	cardinality int
}

func NewDataChunk(types []octosql.Type) *DataChunk {
	columns := make([][]octosql.Value, len(types))
	for i := range columns {
		columns[i] = make([]octosql.Value, StandardVectorSize)
	}
	return &DataChunk{
		Types:   types,
		Columns: columns,
	}
}

func (chunk *DataChunk) ColumnCount() int {
	return len(chunk.Columns)
}

func (chunk *DataChunk) Cardinality() int {
	return chunk.cardinality
}

func (chunk *DataChunk) SetCardinality(n int) {
	if n > StandardVectorSize {
		panic("data chunk cardinality exceeds the standard vector size")
	}
	chunk.cardinality = n
}

func (chunk *DataChunk) SetValue(column, row int, value octosql.Value) {
	chunk.Columns[column][row] = value
}

func (chunk *DataChunk) Value(column, row int) octosql.Value {
	return chunk.Columns[column][row]
}

// Reset empties the chunk, keeping its allocated columns.
func (chunk *DataChunk) Reset() {
	for i := range chunk.Columns {
		for j := 0; j < chunk.cardinality; j++ {
			chunk.Columns[i][j] = octosql.ZeroValue
		}
	}
	chunk.cardinality = 0
}

// Row copies out the row with the given index.
func (chunk *DataChunk) Row(row int) []octosql.Value {
	out := make([]octosql.Value, len(chunk.Columns))
	for i := range chunk.Columns {
		out[i] = chunk.Columns[i][row]
	}
	return out
}
