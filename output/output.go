// Package output renders table function results.
package output

import (
	"io"

	"github.com/pkg/errors"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/octosql"
)

type Formatter interface {
	SetSchema(schema engine.Schema)
	Write(values []octosql.Value) error
	Close() error
}

var formatters = map[string]func(w io.Writer) Formatter{
	"table": func(w io.Writer) Formatter { return NewTableFormatter(w) },
	"csv":   func(w io.Writer) Formatter { return NewCSVFormatter(w) },
	"json":  func(w io.Writer) Formatter { return NewJSONFormatter(w) },
}

func NewFormatter(name string, w io.Writer) (Formatter, error) {
	create, ok := formatters[name]
	if !ok {
		return nil, errors.Errorf("unknown output format '%s', expected one of table, csv, json", name)
	}
	return create(w), nil
}

// Print writes every row of the result using the formatter and closes it.
func Print(formatter Formatter, result *engine.Result) error {
	formatter.SetSchema(result.Schema)
	for _, chunk := range result.Chunks {
		for i := 0; i < chunk.Cardinality(); i++ {
			if err := formatter.Write(chunk.Row(i)); err != nil {
				return errors.Wrap(err, "couldn't write row")
			}
		}
	}
	return formatter.Close()
}
