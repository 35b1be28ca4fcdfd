package value

import (
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Field is one key/value entry of a map Value.
type Field struct {
	Key   string
	Value Value
}

// Value is an immutable, dynamically typed payload: null, bool, number, string,
// ordered list, or ordered map. The zero Value is null.
//
// Values never expose their backing storage, so copies can be shared freely
// between goroutines.
type Value struct {
	kind   Kind
	b      bool
	num    string // JSON number literal
	s      string
	list   []Value
	fields []Field
}

// Null returns the null Value.
func Null() Value { return Value{} }

// FromBool builds a bool Value.
func FromBool(b bool) Value { return Value{kind: KindBool, b: b} }

// FromNumber builds a number Value. NaN and infinities have no JSON form and
// become null.
func FromNumber(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: KindNumber, num: strconv.FormatFloat(f, 'g', -1, 64)}
}

// FromString builds a string Value.
func FromString(s string) Value { return Value{kind: KindString, s: s} }

// FromList builds a list Value. The items slice is copied.
func FromList(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// FromFields builds a map Value preserving field order. A repeated key keeps
// its first position and its last value.
func FromFields(fields ...Field) Value {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		out = setField(out, f.Key, f.Value)
	}
	return Value{kind: KindMap, fields: out}
}

func setField(fields []Field, key string, v Value) []Field {
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = v
			return fields
		}
	}
	return append(fields, Field{Key: key, Value: v})
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null, including the zero Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsMap reports whether v is a map.
func (v Value) IsMap() bool { return v.kind == KindMap }

// Bool returns the boolean value. ok is false for non-bools.
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Number returns the numeric value. ok is false for non-numbers.
func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.num, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Str returns the string value. ok is false for non-strings.
func (v Value) Str() (string, bool) {
	return v.s, v.kind == KindString
}

// Len reports the number of list items or map fields.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.fields)
	default:
		return 0
	}
}

// Index returns the i-th list item, or null when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}
	}
	return v.list[i]
}

// Items returns a copy of the list items.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out
}

// Fields returns a copy of the map fields in order.
func (v Value) Fields() []Field {
	if v.kind != KindMap {
		return nil
	}
	out := make([]Field, len(v.fields))
	copy(out, v.fields)
	return out
}

// Get looks up a map field.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether map v has a field named key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Equal reports deep equality. Map comparison ignores field order and
// numbers compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		a, _ := v.Number()
		b, _ := o.Number()
		return a == b
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for _, f := range v.fields {
			other, ok := o.Get(f.Key)
			if !ok || !f.Value.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}
