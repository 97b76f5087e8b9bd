package record

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Kind names the case Flatten applied to a value.
type Kind int

const (
	KindNull Kind = iota
	KindPrimitive
	KindList
	KindStringified
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindPrimitive:
		return "primitive"
	case KindList:
		return "list"
	default:
		return "stringified"
	}
}

// ListSeparator joins list elements.
const ListSeparator = ", "

// Flatten reduces an extracted value to something a flat metadata store
// accepts: nil, string, bool, or a number. It is total over any input.
func Flatten(v any) any {
	out, _ := Classify(v)
	return out
}

// Classify flattens v and reports which case applied.
//
//   - null: nil stays nil.
//   - primitive: strings, bools, and numeric kinds pass through unchanged.
//   - list: slices and arrays become their elements' string forms joined
//     with ", ".
//   - stringified: everything else (maps, structs, pointers) becomes its
//     string form, JSON where possible.
func Classify(v any) (any, Kind) {
	if v == nil {
		return nil, KindNull
	}
	switch t := v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t, KindPrimitive
	case json.Number:
		return t.String(), KindPrimitive
	case []string:
		return strings.Join(t, ListSeparator), KindList
	case error:
		return t.Error(), KindStringified
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), KindStringified
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = Stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ListSeparator), KindList
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, KindNull
		}
		return Classify(rv.Elem().Interface())
	}
	return Stringify(v), KindStringified
}

// Stringify renders any value as a string. Numbers use the shortest
// representation, so 2023.0 prints as "2023".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprint(v)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}
