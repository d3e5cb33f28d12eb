package output

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/octosql"
)

type CSVFormatter struct {
	writer *csv.Writer
}

func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{
		writer: csv.NewWriter(w),
	}
}

func (t *CSVFormatter) SetSchema(schema engine.Schema) {
	t.writer.Write(schema.Names())
}

func (t *CSVFormatter) Write(values []octosql.Value) error {
	row := make([]string, len(values))
	for i := range values {
		if values[i].IsNull() {
			continue
		}
		switch values[i].Type.TypeID {
		case octosql.TypeIDList, octosql.TypeIDStruct:
			row[i] = values[i].String()
		default:
			row[i] = fmt.Sprintf("%v", values[i].ToRawGoValue())
		}
	}
	return t.writer.Write(row)
}

func (t *CSVFormatter) Close() error {
	t.writer.Flush()
	return t.writer.Error()
}
