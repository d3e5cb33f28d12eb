package octosql

import (
	"fmt"
	"strings"
	"time"
)

var ZeroValue = Value{}

type Value struct {
	Type        Type
	Int         int
	Float       float64
	Boolean     bool
	Str         string
	Time        time.Time
	Duration    time.Duration
	List        []Value
	FieldValues []Value
	Opaque      interface{}
}

func NewNull() Value {
	return Value{
		Type: Null,
	}
}

func NewInt(value int) Value {
	return Value{
		Type: Int,
		Int:  value,
	}
}

func NewFloat(value float64) Value {
	return Value{
		Type:  Float,
		Float: value,
	}
}

func NewBoolean(value bool) Value {
	return Value{
		Type:    Boolean,
		Boolean: value,
	}
}

func NewString(value string) Value {
	return Value{
		Type: String,
		Str:  value,
	}
}

func NewTime(value time.Time) Value {
	return Value{
		Type: Time,
		Time: value,
	}
}

func NewDuration(value time.Duration) Value {
	return Value{
		Type:     Duration,
		Duration: value,
	}
}

// NewList creates a list value, the element type is taken from the first non-null element.
func NewList(value []Value) Value {
	element := Null
	for i := range value {
		if value[i].Type.TypeID != TypeIDNull {
			element = value[i].Type
			break
		}
	}
	return Value{
		Type: NewListType(element),
		List: value,
	}
}

func NewStruct(fields []StructField, values []Value) Value {
	t := Type{TypeID: TypeIDStruct}
	t.Struct.Fields = fields
	return Value{
		Type:        t,
		FieldValues: values,
	}
}

// NewOpaque wraps a host object, so that it can travel as a table function argument.
func NewOpaque(value interface{}) Value {
	return Value{
		Type:   Opaque,
		Opaque: value,
	}
}

func (value Value) IsNull() bool {
	return value.Type.TypeID == TypeIDNull
}

func (value Value) Compare(other Value) int {
	if value.Type.TypeID != other.Type.TypeID {
		if value.Type.TypeID < other.Type.TypeID {
			return -1
		} else {
			return 1
		}
	}

	switch value.Type.TypeID {
	case TypeIDNull:
		return 0

	case TypeIDInt:
		if value.Int < other.Int {
			return -1
		} else if value.Int > other.Int {
			return 1
		} else {
			return 0
		}

	case TypeIDFloat:
		if value.Float < other.Float {
			return -1
		} else if value.Float > other.Float {
			return 1
		} else {
			return 0
		}

	case TypeIDBoolean:
		if value.Boolean == other.Boolean {
			return 0
		} else if !value.Boolean {
			return -1
		} else {
			return 1
		}

	case TypeIDString:
		return strings.Compare(value.Str, other.Str)

	case TypeIDTime:
		if value.Time.Before(other.Time) {
			return -1
		} else if value.Time.After(other.Time) {
			return 1
		} else {
			return 0
		}

	case TypeIDDuration:
		if value.Duration < other.Duration {
			return -1
		} else if value.Duration > other.Duration {
			return 1
		} else {
			return 0
		}

	case TypeIDList:
		return compareSlices(value.List, other.List)

	case TypeIDStruct:
		return compareSlices(value.FieldValues, other.FieldValues)

	case TypeIDOpaque:
		panic("opaque values can't be compared")
	default:
		panic("impossible, type switch bug")
	}
}

func compareSlices(left, right []Value) int {
	for i := 0; i < len(left) && i < len(right); i++ {
		if comp := left[i].Compare(right[i]); comp != 0 {
			return comp
		}
	}
	switch {
	case len(left) < len(right):
		return -1
	case len(left) > len(right):
		return 1
	default:
		return 0
	}
}

func (value Value) String() string {
	builder := &strings.Builder{}
	value.append(builder)
	return builder.String()
}

func (value Value) append(builder *strings.Builder) {
	switch value.Type.TypeID {
	case TypeIDNull:
		builder.WriteString("NULL")

	case TypeIDInt:
		builder.WriteString(fmt.Sprint(value.Int))

	case TypeIDFloat:
		builder.WriteString(fmt.Sprint(value.Float))

	case TypeIDBoolean:
		builder.WriteString(fmt.Sprint(value.Boolean))

	case TypeIDString:
		builder.WriteString(value.Str)

	case TypeIDTime:
		builder.WriteString(value.Time.Format(time.RFC3339Nano))

	case TypeIDDuration:
		builder.WriteString(fmt.Sprint(value.Duration))

	case TypeIDList:
		builder.WriteString("[")
		for i, v := range value.List {
			v.append(builder)
			if i != len(value.List)-1 {
				builder.WriteString(", ")
			}
		}
		builder.WriteString("]")

	case TypeIDStruct:
		builder.WriteString("{")
		for i, v := range value.FieldValues {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString(value.Type.Struct.Fields[i].Name)
			builder.WriteString(": ")
			v.append(builder)
		}
		builder.WriteString("}")

	case TypeIDOpaque:
		builder.WriteString(fmt.Sprintf("<pointer %T>", value.Opaque))

	default:
		panic("impossible, type switch bug")
	}
}

func (value Value) ToRawGoValue() interface{} {
	switch value.Type.TypeID {
	case TypeIDNull:
		return nil
	case TypeIDInt:
		return value.Int
	case TypeIDFloat:
		return value.Float
	case TypeIDBoolean:
		return value.Boolean
	case TypeIDString:
		return value.Str
	case TypeIDTime:
		return value.Time
	case TypeIDDuration:
		return value.Duration
	case TypeIDList:
		out := make([]interface{}, len(value.List))
		for i := range value.List {
			out[i] = value.List[i].ToRawGoValue()
		}
		return out
	case TypeIDStruct:
		out := make(map[string]interface{}, len(value.FieldValues))
		for i := range value.FieldValues {
			out[value.Type.Struct.Fields[i].Name] = value.FieldValues[i].ToRawGoValue()
		}
		return out
	case TypeIDOpaque:
		return value.Opaque
	default:
		panic("invalid octosql.Value to get Raw Go value for")
	}
}
