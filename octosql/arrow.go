package octosql

import (
	"time"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/pkg/errors"
)

// TypeFromArrow maps an arrow data type onto the engine type it's scanned as.
// Only flat columns are supported.
func TypeFromArrow(dt arrow.DataType) (Type, error) {
	switch dt.ID() {
	case arrow.NULL:
		return Null, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return Int, nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return Float, nil
	case arrow.BOOL:
		return Boolean, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return String, nil
	case arrow.TIMESTAMP:
		return Time, nil
	case arrow.DURATION:
		return Duration, nil
	}
	return Type{}, errors.Errorf("unsupported arrow type: %s", dt)
}

// ArrowType is the inverse of TypeFromArrow, choosing the widest arrow representation.
func ArrowType(t Type) (arrow.DataType, error) {
	switch t.TypeID {
	case TypeIDNull:
		return arrow.Null, nil
	case TypeIDInt:
		return arrow.PrimitiveTypes.Int64, nil
	case TypeIDFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case TypeIDBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case TypeIDString:
		return arrow.BinaryTypes.String, nil
	case TypeIDTime:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, nil
	case TypeIDDuration:
		return &arrow.DurationType{Unit: arrow.Nanosecond}, nil
	}
	return nil, errors.Errorf("type %s has no arrow representation", t)
}

// ValueFromArrow reads the i-th element of an arrow array.
func ValueFromArrow(arr arrow.Array, i int) (Value, error) {
	if arr.IsNull(i) {
		return NewNull(), nil
	}
	switch arr := arr.(type) {
	case *array.Null:
		return NewNull(), nil
	case *array.Int8:
		return NewInt(int(arr.Value(i))), nil
	case *array.Int16:
		return NewInt(int(arr.Value(i))), nil
	case *array.Int32:
		return NewInt(int(arr.Value(i))), nil
	case *array.Int64:
		return NewInt(int(arr.Value(i))), nil
	case *array.Uint8:
		return NewInt(int(arr.Value(i))), nil
	case *array.Uint16:
		return NewInt(int(arr.Value(i))), nil
	case *array.Uint32:
		return NewInt(int(arr.Value(i))), nil
	case *array.Uint64:
		return NewInt(int(arr.Value(i))), nil
	case *array.Float32:
		return NewFloat(float64(arr.Value(i))), nil
	case *array.Float64:
		return NewFloat(arr.Value(i)), nil
	case *array.Boolean:
		return NewBoolean(arr.Value(i)), nil
	case *array.String:
		return NewString(arr.Value(i)), nil
	case *array.LargeString:
		return NewString(arr.Value(i)), nil
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return NewTime(time.Unix(0, int64(arr.Value(i))*int64(unit.Multiplier())).UTC()), nil
	case *array.Duration:
		unit := arr.DataType().(*arrow.DurationType).Unit
		return NewDuration(time.Duration(arr.Value(i)) * unit.Multiplier()), nil
	}
	return ZeroValue, errors.Errorf("unsupported arrow array: %s", arr.DataType())
}

// AppendToArrow appends the value to a builder created for ArrowType(t).
func AppendToArrow(builder array.Builder, value Value) error {
	if value.IsNull() {
		builder.AppendNull()
		return nil
	}
	switch builder := builder.(type) {
	case *array.Int64Builder:
		if value.Type.TypeID != TypeIDInt {
			break
		}
		builder.Append(int64(value.Int))
		return nil
	case *array.Float64Builder:
		switch value.Type.TypeID {
		case TypeIDFloat:
			builder.Append(value.Float)
			return nil
		case TypeIDInt:
			builder.Append(float64(value.Int))
			return nil
		}
	case *array.BooleanBuilder:
		if value.Type.TypeID != TypeIDBoolean {
			break
		}
		builder.Append(value.Boolean)
		return nil
	case *array.StringBuilder:
		if value.Type.TypeID != TypeIDString {
			break
		}
		builder.Append(value.Str)
		return nil
	case *array.TimestampBuilder:
		if value.Type.TypeID != TypeIDTime {
			break
		}
		builder.Append(arrow.Timestamp(value.Time.UnixNano() / int64(time.Microsecond)))
		return nil
	case *array.DurationBuilder:
		if value.Type.TypeID != TypeIDDuration {
			break
		}
		builder.Append(arrow.Duration(value.Duration))
		return nil
	}
	return errors.Errorf("can't append %s value to %T", value.Type, builder)
}
