package output

import (
	"fmt"
	"io"
	"time"

	"github.com/valyala/fastjson"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/octosql"
)

// JSONFormatter writes one JSON object per row.
type JSONFormatter struct {
	buf   []byte
	arena *fastjson.Arena
	w     io.Writer
	names []string
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{
		buf:   make([]byte, 0, 1024),
		arena: new(fastjson.Arena),
		w:     w,
	}
}

func (t *JSONFormatter) SetSchema(schema engine.Schema) {
	t.names = schema.Names()
}

func (t *JSONFormatter) Write(values []octosql.Value) error {
	obj := t.arena.NewObject()
	for i := range t.names {
		obj.Set(t.names[i], ValueToJson(t.arena, values[i]))
	}

	t.buf = obj.MarshalTo(t.buf)
	t.buf = append(t.buf, '\n')
	_, err := t.w.Write(t.buf)
	t.buf = t.buf[:0]
	t.arena.Reset()
	return err
}

func ValueToJson(arena *fastjson.Arena, value octosql.Value) *fastjson.Value {
	switch value.Type.TypeID {
	case octosql.TypeIDNull:
		return arena.NewNull()
	case octosql.TypeIDInt:
		return arena.NewNumberInt(value.Int)
	case octosql.TypeIDFloat:
		return arena.NewNumberFloat64(value.Float)
	case octosql.TypeIDBoolean:
		if value.Boolean {
			return arena.NewTrue()
		}
		return arena.NewFalse()
	case octosql.TypeIDString:
		return arena.NewString(value.Str)
	case octosql.TypeIDTime:
		return arena.NewString(value.Time.Format(time.RFC3339))
	case octosql.TypeIDDuration:
		return arena.NewString(value.Duration.String())
	case octosql.TypeIDList:
		arr := arena.NewArray()
		for i := range value.List {
			arr.SetArrayItem(i, ValueToJson(arena, value.List[i]))
		}
		return arr
	case octosql.TypeIDStruct:
		obj := arena.NewObject()
		for i := range value.FieldValues {
			obj.Set(value.Type.Struct.Fields[i].Name, ValueToJson(arena, value.FieldValues[i]))
		}
		return obj
	default:
		return arena.NewString(fmt.Sprint(value.ToRawGoValue()))
	}
}

func (t *JSONFormatter) Close() error {
	return nil
}
