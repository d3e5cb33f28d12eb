package engine

import (
	"github.com/cube2222/octostar/octosql"
)

// Result is a fully materialized table function output.
type Result struct {
	Schema Schema
	Chunks []*DataChunk
}

func (r *Result) RowCount() int {
	count := 0
	for _, chunk := range r.Chunks {
		count += chunk.Cardinality()
	}
	return count
}

func (r *Result) Rows() [][]octosql.Value {
	out := make([][]octosql.Value, 0, r.RowCount())
	for _, chunk := range r.Chunks {
		for i := 0; i < chunk.Cardinality(); i++ {
			out = append(out, chunk.Row(i))
		}
	}
	return out
}
