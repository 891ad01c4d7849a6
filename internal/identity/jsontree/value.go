// Package jsontree models identity payloads as an explicit tree value
// (object / array / scalar) with path-based reads and writes. The merge
// engine needs structural access that encoding/json's opaque interface
// values make awkward: ordered object keys for stable serialization, and
// in-place writes at resolved paths.
package jsontree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the tagged union.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "invalid"
	}
}

// Value is one node of a payload tree. The zero value is JSON null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	keys []string
	obj  map[string]*Value
	arr  []*Value
}

func NewNull() *Value   { return &Value{kind: Null} }
func NewBool(b bool) *Value {
	return &Value{kind: Bool, b: b}
}
func NewNumber(n json.Number) *Value { return &Value{kind: Number, num: n} }
func NewString(s string) *Value      { return &Value{kind: String, str: s} }
func NewObject() *Value {
	return &Value{kind: Object, obj: make(map[string]*Value)}
}
func NewArray(items ...*Value) *Value {
	return &Value{kind: Array, arr: items}
}

func (v *Value) Kind() Kind   { return v.kind }
func (v *Value) IsNull() bool { return v == nil || v.kind == Null }

// Scalar reports whether the node is a leaf (null, bool, number or string).
func (v *Value) Scalar() bool {
	return v.kind != Object && v.kind != Array
}

func (v *Value) AsBool() bool          { return v.b }
func (v *Value) AsNumber() json.Number { return v.num }
func (v *Value) AsString() string      { return v.str }

// Get returns the child under key for object nodes.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.kind != Object {
		return nil, false
	}
	child, ok := v.obj[key]
	return child, ok
}

// Has reports whether an object node carries the key.
func (v *Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Set writes key on an object node, preserving first-insertion order.
func (v *Value) Set(key string, child *Value) {
	if v.kind != Object {
		return
	}
	if _, exists := v.obj[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.obj[key] = child
}

// Keys returns object keys in insertion order.
func (v *Value) Keys() []string {
	if v == nil || v.kind != Object {
		return nil
	}
	return v.keys
}

// Items returns the backing slice of an array node.
func (v *Value) Items() []*Value {
	if v == nil || v.kind != Array {
		return nil
	}
	return v.arr
}

// Append adds an element to an array node.
func (v *Value) Append(item *Value) {
	if v.kind == Array {
		v.arr = append(v.arr, item)
	}
}

// Len returns the number of keys (object) or elements (array).
func (v *Value) Len() int {
	switch v.kind {
	case Object:
		return len(v.obj)
	case Array:
		return len(v.arr)
	default:
		return 0
	}
}

// Clone deep-copies the tree. Merge passes clone before cross-writing so
// input and stored never alias the same nodes.
func (v *Value) Clone() *Value {
	if v == nil {
		return NewNull()
	}
	clone := &Value{kind: v.kind, b: v.b, num: v.num, str: v.str}
	switch v.kind {
	case Object:
		clone.obj = make(map[string]*Value, len(v.obj))
		clone.keys = append([]string(nil), v.keys...)
		for _, k := range v.keys {
			clone.obj[k] = v.obj[k].Clone()
		}
	case Array:
		clone.arr = make([]*Value, len(v.arr))
		for i, item := range v.arr {
			clone.arr[i] = item.Clone()
		}
	}
	return clone
}

// Equal is strict deep equality: same kind, same keys and values, arrays
// compared positionally, numbers compared numerically.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v.IsNull() && other.IsNull()
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Number:
		return numbersEqual(v.num, other.num)
	case String:
		return v.str == other.str
	case Object:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, child := range v.obj {
			otherChild, ok := other.obj[k]
			if !ok || !child.Equal(otherChild) {
				return false
			}
		}
		return true
	case Array:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i, item := range v.arr {
			if !item.Equal(other.arr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	af, aerr := a.Float64()
	bf, berr := b.Float64()
	return aerr == nil && berr == nil && af == bf
}

// Decode parses JSON bytes into a tree, preserving object key order and
// number text.
func Decode(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode payload: trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, child)
			}
			// consume '}'
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := NewArray()
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Append(item)
			}
			// consume ']'
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case bool:
		return NewBool(t), nil
	case json.Number:
		return NewNumber(t), nil
	case string:
		return NewString(t), nil
	case nil:
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// Encode serializes the tree back to JSON, keeping object key order.
func (v *Value) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v *Value) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(v.num.String())
	case String:
		escaped, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(escaped)
	case Object:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			escaped, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(escaped)
			buf.WriteByte(':')
			if err := encodeValue(buf, v.obj[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case Array:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}

// SortedKeys returns object keys sorted lexically. Used by tests that need
// order-independent assertions.
func (v *Value) SortedKeys() []string {
	keys := append([]string(nil), v.Keys()...)
	sort.Strings(keys)
	return keys
}
