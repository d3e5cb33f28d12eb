package cmd

import (
	"math"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"

	"github.com/cube2222/octostar/octosql"
)

// parsePositional reads a JSON array of function arguments.
func parsePositional(parser *fastjson.Parser, data string) ([]octosql.Value, error) {
	if data == "" {
		return nil, nil
	}
	v, err := parser.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't parse arguments")
	}
	items, err := v.Array()
	if err != nil {
		return nil, errors.Errorf("arguments must be a JSON array, got %s", v.Type())
	}
	out := make([]octosql.Value, len(items))
	for i := range items {
		out[i], err = jsonToValue(items[i])
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
	}
	return out, nil
}

// parseNamed reads a JSON object of named function arguments.
func parseNamed(parser *fastjson.Parser, data string) (map[string]octosql.Value, error) {
	out := map[string]octosql.Value{}
	if data == "" {
		return out, nil
	}
	v, err := parser.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't parse named arguments")
	}
	obj, err := v.Object()
	if err != nil {
		return nil, errors.Errorf("named arguments must be a JSON object, got %s", v.Type())
	}
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if err != nil {
			return
		}
		var value octosql.Value
		value, err = jsonToValue(v)
		if err != nil {
			err = errors.Wrapf(err, "argument %s", key)
			return
		}
		out[string(key)] = value
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func jsonToValue(v *fastjson.Value) (octosql.Value, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return octosql.NewNull(), nil
	case fastjson.TypeTrue:
		return octosql.NewBoolean(true), nil
	case fastjson.TypeFalse:
		return octosql.NewBoolean(false), nil
	case fastjson.TypeString:
		return octosql.NewString(string(v.GetStringBytes())), nil
	case fastjson.TypeNumber:
		f := v.GetFloat64()
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return octosql.NewInt(int(f)), nil
		}
		return octosql.NewFloat(f), nil
	case fastjson.TypeArray:
		items := v.GetArray()
		values := make([]octosql.Value, len(items))
		for i := range items {
			value, err := jsonToValue(items[i])
			if err != nil {
				return octosql.ZeroValue, err
			}
			values[i] = value
		}
		return octosql.NewList(values), nil
	case fastjson.TypeObject:
		var fields []octosql.StructField
		var values []octosql.Value
		var err error
		v.GetObject().Visit(func(key []byte, v *fastjson.Value) {
			if err != nil {
				return
			}
			var value octosql.Value
			value, err = jsonToValue(v)
			fields = append(fields, octosql.StructField{Name: string(key), Type: value.Type})
			values = append(values, value)
		})
		if err != nil {
			return octosql.ZeroValue, err
		}
		return octosql.NewStruct(fields, values), nil
	default:
		return octosql.ZeroValue, errors.Errorf("unsupported JSON value of type %s", v.Type())
	}
}
