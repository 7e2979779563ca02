// Package document models the portable patient/episode documents exchanged by
// the export and import endpoints as a typed tree of scalars, mappings and
// sequences.
package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Node is a single value in a document tree. It is one of Scalar, Mapping or
// Sequence.
type Node interface {
	node()
}

// Scalar holds a leaf value: nil, bool, string, json.Number or a Go number.
type Scalar struct {
	Value interface{}
}

// Mapping is a keyed subtree.
type Mapping map[string]Node

// Sequence is an ordered subtree.
type Sequence []Node

func (Scalar) node()   {}
func (Mapping) node()  {}
func (Sequence) node() {}

// S wraps v in a Scalar.
func S(v interface{}) Scalar { return Scalar{Value: v} }

// FromValue converts decoded JSON (or plain Go maps, slices and scalars) into
// a Node.
func FromValue(v interface{}) Node {
	switch t := v.(type) {
	case Node:
		return t
	case map[string]interface{}:
		m := make(Mapping, len(t))
		for k, item := range t {
			m[k] = FromValue(item)
		}
		return m
	case []interface{}:
		seq := make(Sequence, len(t))
		for i, item := range t {
			seq[i] = FromValue(item)
		}
		return seq
	case []map[string]interface{}:
		seq := make(Sequence, len(t))
		for i, item := range t {
			seq[i] = FromValue(item)
		}
		return seq
	default:
		return Scalar{Value: t}
	}
}

// Value converts a Node back into plain Go values suitable for encoding/json.
func Value(n Node) interface{} {
	switch t := n.(type) {
	case nil:
		return nil
	case Scalar:
		return t.Value
	case Mapping:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = Value(v)
		}
		return out
	case Sequence:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = Value(v)
		}
		return out
	default:
		panic(fmt.Sprintf("document: unknown node type %T", n))
	}
}

func (s Scalar) MarshalJSON() ([]byte, error)   { return json.Marshal(s.Value) }
func (m Mapping) MarshalJSON() ([]byte, error)  { return json.Marshal(Value(m)) }
func (s Sequence) MarshalJSON() ([]byte, error) { return json.Marshal(Value(s)) }

// IsScalar reports whether n is a leaf.
func IsScalar(n Node) bool {
	_, ok := n.(Scalar)
	return ok
}

// Clone returns a deep copy of m.
func (m Mapping) Clone() Mapping {
	if m == nil {
		return nil
	}
	return FromValue(Value(m)).(Mapping)
}

// Keys returns the mapping keys in sorted order.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pop removes key from m and returns its value.
func (m Mapping) Pop(key string) (Node, bool) {
	v, ok := m[key]
	if ok {
		delete(m, key)
	}
	return v, ok
}

// String returns the textual form of a scalar value under key. Missing keys,
// nulls and non-scalar values yield "".
func (m Mapping) String(key string) string {
	s, ok := m[key].(Scalar)
	if !ok {
		return ""
	}
	return ScalarString(s)
}

// ScalarString renders a scalar value as text.
func ScalarString(s Scalar) string {
	switch v := s.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Mappings interprets n as a sequence of mappings, as used for lists of
// subrecords. field names the offending key in validation errors.
func Mappings(field string, n Node) ([]Mapping, error) {
	seq, ok := n.(Sequence)
	if !ok {
		if s, isScalar := n.(Scalar); isScalar && s.Value == nil {
			return nil, nil
		}
		return nil, Invalid(field, "expected a list of objects")
	}
	out := make([]Mapping, 0, len(seq))
	for i, item := range seq {
		m, ok := item.(Mapping)
		if !ok {
			return nil, Invalid(fmt.Sprintf("%s[%d]", field, i), "expected an object")
		}
		out = append(out, m)
	}
	return out, nil
}
