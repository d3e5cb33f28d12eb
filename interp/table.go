package interp

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/pkg/errors"
	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/octosql"
)

// ArrowStreamer is a Starlark value which can be scanned as a stream of arrow records.
type ArrowStreamer interface {
	starlark.Value
	ArrowSchema() *arrow.Schema
	// ArrowStream creates a new stream over the data, the caller releases it.
	ArrowStream() (array.RecordReader, error)
}

// Table is an immutable columnar table, split into record batches.
type Table struct {
	schema  *arrow.Schema
	records []arrow.Record
}

var (
	_ ArrowStreamer     = (*Table)(nil)
	_ starlark.HasAttrs = (*Table)(nil)
	_ starlark.Sequence = (*Table)(nil)
)

func NewTable(schema *arrow.Schema, records []arrow.Record) *Table {
	return &Table{schema: schema, records: records}
}

func (t *Table) ArrowSchema() *arrow.Schema {
	return t.schema
}

func (t *Table) ArrowStream() (array.RecordReader, error) {
	return array.NewRecordReader(t.schema, t.records)
}

func (t *Table) NumRows() int {
	rows := 0
	for _, record := range t.records {
		rows += int(record.NumRows())
	}
	return rows
}

func (t *Table) NumBatches() int {
	return len(t.records)
}

func (t *Table) String() string {
	names := make([]string, len(t.schema.Fields()))
	for i, field := range t.schema.Fields() {
		names[i] = field.Name
	}
	return fmt.Sprintf("arrow_table(rows=%d, columns=[%s])", t.NumRows(), strings.Join(names, ", "))
}

func (t *Table) Type() string         { return "arrow_table" }
func (t *Table) Freeze()              {}
func (t *Table) Truth() starlark.Bool { return starlark.True }
func (t *Table) Hash() (uint32, error) {
	return 0, errors.New("unhashable type: arrow_table")
}

// Len is the number of rows.
func (t *Table) Len() int {
	return t.NumRows()
}

// Iterate yields the rows as tuples.
func (t *Table) Iterate() starlark.Iterator {
	return &tableIterator{table: t}
}

func (t *Table) AttrNames() []string {
	return []string{"column_names", "num_batches", "num_columns", "num_rows", "schema"}
}

func (t *Table) Attr(name string) (starlark.Value, error) {
	switch name {
	case "num_rows":
		return starlark.MakeInt(t.NumRows()), nil
	case "num_columns":
		return starlark.MakeInt(len(t.schema.Fields())), nil
	case "num_batches":
		return starlark.MakeInt(len(t.records)), nil
	case "column_names":
		names := make([]starlark.Value, len(t.schema.Fields()))
		for i, field := range t.schema.Fields() {
			names[i] = starlark.String(field.Name)
		}
		return starlark.NewList(names), nil
	case "schema":
		pairs := make([]starlark.Value, len(t.schema.Fields()))
		for i, field := range t.schema.Fields() {
			engineType, err := octosql.TypeFromArrow(field.Type)
			if err != nil {
				return nil, err
			}
			pairs[i] = starlark.Tuple{starlark.String(field.Name), starlark.String(engineType.String())}
		}
		return starlark.NewList(pairs), nil
	}
	return nil, nil
}

type tableIterator struct {
	table  *Table
	record int
	row    int
}

func (iter *tableIterator) Next(p *starlark.Value) bool {
	for iter.record < len(iter.table.records) && int64(iter.row) >= iter.table.records[iter.record].NumRows() {
		iter.record++
		iter.row = 0
	}
	if iter.record >= len(iter.table.records) {
		return false
	}
	record := iter.table.records[iter.record]
	row := make(starlark.Tuple, record.NumCols())
	for i := range row {
		value, err := octosql.ValueFromArrow(record.Column(i), iter.row)
		if err != nil {
			row[i] = starlark.None
			continue
		}
		converted, err := FromValue(value)
		if err != nil {
			converted = starlark.None
		}
		row[i] = converted
	}
	iter.row++
	*p = row
	return true
}

func (iter *tableIterator) Done() {}

// arrowTableBuiltin implements arrow_table(data, batch_size=None).
// data is a dict of column name to list of values, columns keep the dict order.
func arrowTableBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data *starlark.Dict
	var batchSizeValue starlark.Value = starlark.None
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "data", &data, "batch_size?", &batchSizeValue); err != nil {
		return nil, err
	}
	batchSize := 0
	if batchSizeValue != starlark.None {
		var err error
		if batchSize, err = starlark.AsInt32(batchSizeValue); err != nil {
			return nil, errors.Wrap(err, "batch_size")
		}
		if batchSize <= 0 {
			return nil, errors.Errorf("%s: batch_size must be positive, got %d", fn.Name(), batchSize)
		}
	}

	names := make([]string, 0, data.Len())
	columns := make([][]octosql.Value, 0, data.Len())
	rows := -1
	for _, item := range data.Items() {
		name, ok := item[0].(starlark.String)
		if !ok {
			return nil, errors.Errorf("%s: column names must be strings, got %s", fn.Name(), item[0].Type())
		}
		iter := starlark.Iterate(item[1])
		if iter == nil {
			return nil, errors.Errorf("%s: column %s must be iterable, got %s", fn.Name(), name, item[1].Type())
		}
		var column []octosql.Value
		var element starlark.Value
		for iter.Next(&element) {
			value, err := InferValue(element)
			if err != nil {
				iter.Done()
				return nil, errors.Wrapf(err, "%s: column %s", fn.Name(), name)
			}
			column = append(column, value)
		}
		iter.Done()
		if rows != -1 && len(column) != rows {
			return nil, errors.Errorf("%s: column %s has %d values, expected %d", fn.Name(), name, len(column), rows)
		}
		rows = len(column)
		names = append(names, string(name))
		columns = append(columns, column)
	}
	if rows == -1 {
		rows = 0
	}
	if batchSize == 0 {
		batchSize = rows
	}

	table, err := BuildTable(names, columns, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, fn.Name())
	}
	return table, nil
}

// BuildTable builds a table out of equally long columns. The type of each column is the type of its first non-null value.
func BuildTable(names []string, columns [][]octosql.Value, batchSize int) (*Table, error) {
	fields := make([]arrow.Field, len(columns))
	for i, column := range columns {
		columnType := octosql.Null
		for _, value := range column {
			if value.Type.TypeID == octosql.TypeIDNull {
				continue
			}
			if value.Type.TypeID == octosql.TypeIDFloat && columnType.TypeID == octosql.TypeIDInt {
				columnType = octosql.Float
				continue
			}
			if columnType.TypeID == octosql.TypeIDNull {
				columnType = value.Type
			}
		}
		arrowType, err := octosql.ArrowType(columnType)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", names[i])
		}
		fields[i] = arrow.Field{Name: names[i], Type: arrowType, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	rows := 0
	if len(columns) > 0 {
		rows = len(columns[0])
	}
	var records []arrow.Record
	for offset := 0; offset < rows; offset += batchSize {
		end := offset + batchSize
		if end > rows {
			end = rows
		}
		builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
		for i, column := range columns {
			for _, value := range column[offset:end] {
				if err := octosql.AppendToArrow(builder.Field(i), value); err != nil {
					builder.Release()
					return nil, errors.Wrapf(err, "column %s", names[i])
				}
			}
		}
		records = append(records, builder.NewRecord())
		builder.Release()
	}
	return NewTable(schema, records), nil
}
