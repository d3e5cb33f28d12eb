package tvf

import (
	"strings"

	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
)

// Variant selects how the callable's result is turned into rows.
type Variant int

const (
	// VariantRowIter treats the result as an iterable of rows.
	VariantRowIter Variant = iota
	// VariantColumnar treats the result as a stream of arrow record batches.
	VariantColumnar
)

func (v Variant) String() string {
	switch v {
	case VariantRowIter:
		return "tuples"
	case VariantColumnar:
		return "arrow_table"
	}
	return "unknown"
}

// ParseVariant resolves a user supplied variant tag.
// Strings are case-insensitive, with the empty string meaning tuples. Integers 0 and 1 are accepted as well.
func ParseVariant(value interface{}) (Variant, error) {
	switch value := value.(type) {
	case nil:
		return VariantRowIter, nil
	case Variant:
		if value == VariantRowIter || value == VariantColumnar {
			return value, nil
		}
		return 0, engine.InvalidInputErrorf("'%d' is not a recognized type for 'tvf_type'", int(value))
	case starlark.NoneType:
		return VariantRowIter, nil
	case starlark.String:
		return parseVariantString(string(value))
	case string:
		return parseVariantString(value)
	case starlark.Int:
		i, ok := value.Int64()
		if !ok {
			return 0, engine.InvalidInputErrorf("'%s' is not a recognized type for 'tvf_type'", value)
		}
		return parseVariantInt(int(i))
	case int:
		return parseVariantInt(value)
	}
	return 0, engine.InvalidInputErrorf("'%v' is not a recognized type for 'tvf_type'", value)
}

func parseVariantString(value string) (Variant, error) {
	switch strings.ToLower(value) {
	case "", "tuples":
		return VariantRowIter, nil
	case "arrow_table":
		return VariantColumnar, nil
	}
	return 0, engine.InvalidInputErrorf("'%s' is not a recognized type for 'tvf_type'", value)
}

func parseVariantInt(value int) (Variant, error) {
	switch value {
	case 0:
		return VariantRowIter, nil
	case 1:
		return VariantColumnar, nil
	}
	return 0, engine.InvalidInputErrorf("'%d' is not a recognized type for 'tvf_type'", value)
}
