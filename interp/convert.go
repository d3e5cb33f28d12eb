package interp

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/cube2222/octostar/octosql"
)

// ToValue converts a Starlark value into an engine value of the target type.
// None converts to NULL for every target type. The caller must hold the lock.
func ToValue(value starlark.Value, target octosql.Type) (octosql.Value, error) {
	if value == starlark.None {
		return octosql.NewNull(), nil
	}

	switch target.TypeID {
	case octosql.TypeIDAny:
		return InferValue(value)
	case octosql.TypeIDNull:
		return octosql.ZeroValue, errors.Errorf("expected None, got %s", value.Type())
	case octosql.TypeIDInt:
		switch value := value.(type) {
		case starlark.Int:
			i, ok := value.Int64()
			if !ok {
				return octosql.ZeroValue, errors.Errorf("integer %s out of range", value)
			}
			return octosql.NewInt(int(i)), nil
		case starlark.Bool:
			if value {
				return octosql.NewInt(1), nil
			}
			return octosql.NewInt(0), nil
		}
	case octosql.TypeIDFloat:
		switch value := value.(type) {
		case starlark.Float:
			return octosql.NewFloat(float64(value)), nil
		case starlark.Int:
			return octosql.NewFloat(float64(value.Float())), nil
		}
	case octosql.TypeIDBoolean:
		if value, ok := value.(starlark.Bool); ok {
			return octosql.NewBoolean(bool(value)), nil
		}
	case octosql.TypeIDString:
		if value, ok := value.(starlark.String); ok {
			return octosql.NewString(string(value)), nil
		}
	case octosql.TypeIDTime:
		if value, ok := value.(starlarktime.Time); ok {
			return octosql.NewTime(time.Time(value)), nil
		}
	case octosql.TypeIDDuration:
		if value, ok := value.(starlarktime.Duration); ok {
			return octosql.NewDuration(time.Duration(value)), nil
		}
	case octosql.TypeIDList:
		iter := starlark.Iterate(value)
		if iter == nil || isString(value) {
			break
		}
		defer iter.Done()
		values := make([]octosql.Value, 0)
		var element starlark.Value
		for iter.Next(&element) {
			converted, err := ToValue(element, *target.List.Element)
			if err != nil {
				return octosql.ZeroValue, errors.Wrapf(err, "list element %d", len(values))
			}
			values = append(values, converted)
		}
		out := octosql.NewList(values)
		out.Type = target
		return out, nil
	case octosql.TypeIDStruct:
		values := make([]octosql.Value, len(target.Struct.Fields))
		for i, field := range target.Struct.Fields {
			fieldValue, err := fieldOf(value, field.Name)
			if err != nil {
				return octosql.ZeroValue, err
			}
			converted, err := ToValue(fieldValue, field.Type)
			if err != nil {
				return octosql.ZeroValue, errors.Wrapf(err, "field %s", field.Name)
			}
			values[i] = converted
		}
		return octosql.NewStruct(target.Struct.Fields, values), nil
	}
	return octosql.ZeroValue, errors.Errorf("can't convert %s to %s", value.Type(), target)
}

func isString(value starlark.Value) bool {
	_, ok := value.(starlark.String)
	return ok
}

func fieldOf(value starlark.Value, name string) (starlark.Value, error) {
	switch value := value.(type) {
	case starlark.Mapping:
		out, found, err := value.Get(starlark.String(name))
		if err != nil {
			return nil, err
		}
		if !found {
			return starlark.None, nil
		}
		return out, nil
	case starlark.HasAttrs:
		out, err := value.Attr(name)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return starlark.None, nil
		}
		return out, nil
	}
	return nil, errors.Errorf("can't read field %s of %s", name, value.Type())
}

// InferValue converts a Starlark value into the engine value of its natural type.
func InferValue(value starlark.Value) (octosql.Value, error) {
	switch value := value.(type) {
	case starlark.NoneType:
		return octosql.NewNull(), nil
	case starlark.Bool:
		return octosql.NewBoolean(bool(value)), nil
	case starlark.Int:
		return ToValue(value, octosql.Int)
	case starlark.Float:
		return octosql.NewFloat(float64(value)), nil
	case starlark.String:
		return octosql.NewString(string(value)), nil
	case starlarktime.Time:
		return octosql.NewTime(time.Time(value)), nil
	case starlarktime.Duration:
		return octosql.NewDuration(time.Duration(value)), nil
	case *starlark.List, starlark.Tuple:
		iter := starlark.Iterate(value)
		defer iter.Done()
		values := make([]octosql.Value, 0)
		var element starlark.Value
		for iter.Next(&element) {
			converted, err := InferValue(element)
			if err != nil {
				return octosql.ZeroValue, err
			}
			values = append(values, converted)
		}
		return octosql.NewList(values), nil
	case *starlark.Dict:
		names := make([]string, 0, value.Len())
		for _, key := range value.Keys() {
			name, ok := key.(starlark.String)
			if !ok {
				return octosql.ZeroValue, errors.Errorf("dict keys must be strings to convert to a struct, got %s", key.Type())
			}
			names = append(names, string(name))
		}
		return inferStruct(names, func(name string) (starlark.Value, error) {
			out, _, err := value.Get(starlark.String(name))
			return out, err
		})
	case *starlarkstruct.Struct:
		names := value.AttrNames()
		sort.Strings(names)
		return inferStruct(names, value.Attr)
	}
	return octosql.ZeroValue, errors.Errorf("unsupported value type %s", value.Type())
}

func inferStruct(names []string, get func(name string) (starlark.Value, error)) (octosql.Value, error) {
	fields := make([]octosql.StructField, len(names))
	values := make([]octosql.Value, len(names))
	for i, name := range names {
		raw, err := get(name)
		if err != nil {
			return octosql.ZeroValue, err
		}
		converted, err := InferValue(raw)
		if err != nil {
			return octosql.ZeroValue, errors.Wrapf(err, "field %s", name)
		}
		fields[i] = octosql.StructField{Name: name, Type: converted.Type}
		values[i] = converted
	}
	return octosql.NewStruct(fields, values), nil
}

// FromValue converts an engine value into a Starlark value. The caller must hold the lock.
func FromValue(value octosql.Value) (starlark.Value, error) {
	switch value.Type.TypeID {
	case octosql.TypeIDNull:
		return starlark.None, nil
	case octosql.TypeIDInt:
		return starlark.MakeInt(value.Int), nil
	case octosql.TypeIDFloat:
		return starlark.Float(value.Float), nil
	case octosql.TypeIDBoolean:
		return starlark.Bool(value.Boolean), nil
	case octosql.TypeIDString:
		return starlark.String(value.Str), nil
	case octosql.TypeIDTime:
		return starlarktime.Time(value.Time), nil
	case octosql.TypeIDDuration:
		return starlarktime.Duration(value.Duration), nil
	case octosql.TypeIDList:
		elements := make([]starlark.Value, len(value.List))
		for i := range value.List {
			element, err := FromValue(value.List[i])
			if err != nil {
				return nil, err
			}
			elements[i] = element
		}
		return starlark.NewList(elements), nil
	case octosql.TypeIDStruct:
		dict := make(starlark.StringDict, len(value.FieldValues))
		for i, field := range value.Type.Struct.Fields {
			fieldValue, err := FromValue(value.FieldValues[i])
			if err != nil {
				return nil, err
			}
			dict[field.Name] = fieldValue
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, dict), nil
	}
	return nil, errors.Errorf("%s values can't be passed to Starlark", value.Type)
}
