package octosql

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type TypeID int

const (
	TypeIDNull TypeID = iota
	TypeIDInt
	TypeIDFloat
	TypeIDBoolean
	TypeIDString
	TypeIDTime
	TypeIDDuration
	TypeIDList
	TypeIDStruct
	TypeIDAny
	// TypeIDOpaque values carry host pointers through function arguments.
	// They can't be declared in a schema.
	TypeIDOpaque
)

type Type struct {
	TypeID   TypeID
	Null     struct{}
	Int      struct{}
	Float    struct{}
	Boolean  struct{}
	Str      struct{}
	Time     struct{}
	Duration struct{}
	List     struct {
		Element *Type
	}
	Struct struct {
		Fields []StructField
	}
	Any    struct{}
	Opaque struct{}
}

type StructField struct {
	Name string
	Type Type
}

type TypeRelation int

const (
	TypeRelationIsnt TypeRelation = iota
	TypeRelationMaybe
	TypeRelationIs
)

func (t Type) Is(other Type) TypeRelation {
	if other.TypeID == TypeIDAny {
		return TypeRelationIs
	}
	if t.TypeID == TypeIDAny {
		return TypeRelationMaybe
	}
	if t.TypeID == TypeIDNull {
		// Null fits into any column.
		return TypeRelationIs
	}
	if t.TypeID == TypeIDList {
		if other.TypeID != TypeIDList {
			return TypeRelationIsnt
		}
		return t.List.Element.Is(*other.List.Element)
	}
	if t.TypeID == TypeIDStruct {
		if other.TypeID != TypeIDStruct {
			return TypeRelationIsnt
		}
		if len(t.Struct.Fields) != len(other.Struct.Fields) {
			return TypeRelationIsnt
		}
		out := TypeRelationIs
		for i := range t.Struct.Fields {
			if t.Struct.Fields[i].Name != other.Struct.Fields[i].Name {
				return TypeRelationIsnt
			}
			if rel := t.Struct.Fields[i].Type.Is(other.Struct.Fields[i].Type); rel < out {
				out = rel
			}
		}
		return out
	}
	if t.TypeID == other.TypeID {
		return TypeRelationIs
	}
	return TypeRelationIsnt
}

func (t Type) String() string {
	switch t.TypeID {
	case TypeIDNull:
		return "NULL"
	case TypeIDInt:
		return "BIGINT"
	case TypeIDFloat:
		return "DOUBLE"
	case TypeIDBoolean:
		return "BOOLEAN"
	case TypeIDString:
		return "VARCHAR"
	case TypeIDTime:
		return "TIMESTAMP"
	case TypeIDDuration:
		return "INTERVAL"
	case TypeIDList:
		return fmt.Sprintf("%s[]", *t.List.Element)
	case TypeIDStruct:
		fieldStrings := make([]string, len(t.Struct.Fields))
		for i, field := range t.Struct.Fields {
			fieldStrings[i] = fmt.Sprintf("%s %s", field.Name, field.Type)
		}

		return fmt.Sprintf("STRUCT(%s)", strings.Join(fieldStrings, ", "))
	case TypeIDAny:
		return "ANY"
	case TypeIDOpaque:
		return "POINTER"
	}
	panic("impossible, type switch bug")
}

var (
	Null     Type = Type{TypeID: TypeIDNull}
	Int      Type = Type{TypeID: TypeIDInt}
	Float    Type = Type{TypeID: TypeIDFloat}
	Boolean  Type = Type{TypeID: TypeIDBoolean}
	String   Type = Type{TypeID: TypeIDString}
	Time     Type = Type{TypeID: TypeIDTime}
	Duration Type = Type{TypeID: TypeIDDuration}
	Any      Type = Type{TypeID: TypeIDAny}
	Opaque   Type = Type{TypeID: TypeIDOpaque}
)

func NewListType(element Type) Type {
	out := Type{TypeID: TypeIDList}
	out.List.Element = &element
	return out
}

var typeNames = map[string]Type{
	"NULL":      Null,
	"TINYINT":   Int,
	"SMALLINT":  Int,
	"INT":       Int,
	"INTEGER":   Int,
	"INT4":      Int,
	"BIGINT":    Int,
	"INT8":      Int,
	"LONG":      Int,
	"UTINYINT":  Int,
	"USMALLINT": Int,
	"UINTEGER":  Int,
	"FLOAT":     Float,
	"REAL":      Float,
	"DOUBLE":    Float,
	"DECIMAL":   Float,
	"NUMERIC":   Float,
	"BOOL":      Boolean,
	"BOOLEAN":   Boolean,
	"VARCHAR":   String,
	"TEXT":      String,
	"STRING":    String,
	"CHAR":      String,
	"TIMESTAMP": Time,
	"DATETIME":  Time,
	"INTERVAL":  Duration,
	"ANY":       Any,
}

// ParseType resolves a SQL type name, as written in table function schemas, into a Type.
// Names are case-insensitive, a trailing [] denotes a list and parenthesized
// modifiers such as DECIMAL(18, 3) or VARCHAR(10) are accepted and ignored.
func ParseType(name string) (Type, error) {
	trimmed := strings.TrimSpace(name)
	if strings.HasSuffix(trimmed, "[]") {
		element, err := ParseType(strings.TrimSuffix(trimmed, "[]"))
		if err != nil {
			return Type{}, err
		}
		return NewListType(element), nil
	}
	base := trimmed
	if i := strings.Index(base, "("); i != -1 {
		if !strings.HasSuffix(base, ")") {
			return Type{}, errors.Errorf("Type with name %s does not exist!", name)
		}
		base = strings.TrimSpace(base[:i])
	}
	t, ok := typeNames[strings.ToUpper(base)]
	if !ok {
		return Type{}, errors.Errorf("Type with name %s does not exist!", name)
	}
	return t, nil
}
