// Package spec models an OpenAPI document as an explicit tree.
//
// Every value in the document is a *Node tagged with one of four kinds:
// objects (mappings with ordered keys), arrays, scalars and references.
// A reference is an object whose "$ref" member is a string. Keeping the
// reference kind explicit lets the resolver and the tool generator tell a
// still-unresolved reference apart from an ordinary schema without shape
// checks scattered across the code.
//
// Object keys keep document order so everything derived from a document is
// deterministic for a given input.
package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind tags a Node.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindRef:
		return "ref"
	default:
		return "scalar"
	}
}

// RefKey is the member name that turns an object into a reference node.
const RefKey = "$ref"

// Node is one value of a document tree. Nodes are treated as immutable once
// a tree has been built; Resolve returns new trees instead of mutating.
type Node struct {
	Kind Kind
	// Value holds scalars: nil, bool, string, json.Number, int64 or float64.
	Value  any
	Keys   []string
	Fields map[string]*Node
	Items  []*Node
}

// NewScalar wraps a scalar value.
func NewScalar(v any) *Node {
	return &Node{Kind: KindScalar, Value: v}
}

// NewObject returns an empty object node.
func NewObject() *Node {
	return &Node{Kind: KindObject, Fields: map[string]*Node{}}
}

// NewArray returns an array node holding items.
func NewArray(items ...*Node) *Node {
	return &Node{Kind: KindArray, Items: items}
}

// NewRef returns a reference node pointing at ref.
func NewRef(ref string) *Node {
	n := NewObject()
	n.Set(RefKey, NewScalar(ref))
	return n
}

// Set adds or replaces a member, keeping first-insertion order. Setting a
// string "$ref" member turns the node into a reference.
func (n *Node) Set(key string, child *Node) *Node {
	if n.Fields == nil {
		n.Fields = map[string]*Node{}
	}
	if _, exists := n.Fields[key]; !exists {
		n.Keys = append(n.Keys, key)
	}
	n.Fields[key] = child
	if key == RefKey {
		if _, ok := child.Str(); ok {
			n.Kind = KindRef
		}
	}
	return n
}

// Append adds an item to an array node.
func (n *Node) Append(child *Node) *Node {
	n.Items = append(n.Items, child)
	return n
}

// IsObject reports whether the node has members (objects and references).
func (n *Node) IsObject() bool {
	return n != nil && (n.Kind == KindObject || n.Kind == KindRef)
}

// Ref returns the reference string of a reference node.
func (n *Node) Ref() string {
	if n == nil || n.Kind != KindRef {
		return ""
	}
	s, _ := n.Fields[RefKey].Str()
	return s
}

// Get returns the member named key, or nil.
func (n *Node) Get(key string) *Node {
	if !n.IsObject() {
		return nil
	}
	return n.Fields[key]
}

// Path walks a chain of member names, returning nil on the first miss.
func (n *Node) Path(keys ...string) *Node {
	cur := n
	for _, k := range keys {
		cur = cur.Get(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Index returns the i-th array item, or nil.
func (n *Node) Index(i int) *Node {
	if n == nil || n.Kind != KindArray || i < 0 || i >= len(n.Items) {
		return nil
	}
	return n.Items[i]
}

// Str returns the node's string value.
func (n *Node) Str() (string, bool) {
	if n == nil || n.Kind != KindScalar {
		return "", false
	}
	s, ok := n.Value.(string)
	return s, ok
}

// StringOr returns the string value or def.
func (n *Node) StringOr(def string) string {
	if s, ok := n.Str(); ok {
		return s
	}
	return def
}

// String renders the node as compact JSON.
func (n *Node) String() string {
	raw, err := n.MarshalJSON()
	if err != nil {
		return "<" + n.Kind.String() + ">"
	}
	return string(raw)
}

// Bool returns the node's boolean value.
func (n *Node) Bool() bool {
	if n == nil || n.Kind != KindScalar {
		return false
	}
	b, _ := n.Value.(bool)
	return b
}

// Len is the number of members or items.
func (n *Node) Len() int {
	switch {
	case n == nil:
		return 0
	case n.Kind == KindArray:
		return len(n.Items)
	case n.IsObject():
		return len(n.Keys)
	}
	return 0
}

// HasRef reports whether any reference node is reachable from n.
func (n *Node) HasRef() bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case KindRef:
		return true
	case KindObject:
		for _, k := range n.Keys {
			if n.Fields[k].HasRef() {
				return true
			}
		}
	case KindArray:
		for _, it := range n.Items {
			if it.HasRef() {
				return true
			}
		}
	}
	return false
}

// Clone returns a shallow copy of an object or array so callers can extend
// it without touching the shared original.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Value: n.Value}
	if n.Fields != nil {
		c.Keys = append([]string(nil), n.Keys...)
		c.Fields = make(map[string]*Node, len(n.Fields))
		for k, v := range n.Fields {
			c.Fields[k] = v
		}
	}
	if n.Items != nil {
		c.Items = append([]*Node(nil), n.Items...)
	}
	return c
}

// Equal compares two trees structurally, including member order.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Kind != o.Kind {
		return false
	}
	switch n.Kind {
	case KindScalar:
		return reflect.DeepEqual(n.Value, o.Value)
	case KindArray:
		if len(n.Items) != len(o.Items) {
			return false
		}
		for i := range n.Items {
			if !n.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	default:
		if len(n.Keys) != len(o.Keys) {
			return false
		}
		for i, k := range n.Keys {
			if o.Keys[i] != k || !n.Fields[k].Equal(o.Fields[k]) {
				return false
			}
		}
		return true
	}
}

// Interface converts the tree into plain Go values (map[string]any, []any,
// scalars), as expected by encoders and schema validators.
func (n *Node) Interface() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindArray:
		out := make([]any, len(n.Items))
		for i, it := range n.Items {
			out[i] = it.Interface()
		}
		return out
	case KindObject, KindRef:
		out := make(map[string]any, len(n.Keys))
		for _, k := range n.Keys {
			out[k] = n.Fields[k].Interface()
		}
		return out
	default:
		return n.Value
	}
}

// FromInterface builds a tree from plain Go values. Map keys are sorted
// because Go maps carry no order.
func FromInterface(v any) *Node {
	switch val := v.(type) {
	case *Node:
		return val
	case map[string]any:
		n := NewObject()
		for _, k := range sortedKeys(val) {
			n.Set(k, FromInterface(val[k]))
		}
		return n
	case []any:
		n := NewArray()
		for _, it := range val {
			n.Append(FromInterface(it))
		}
		return n
	case []string:
		n := NewArray()
		for _, it := range val {
			n.Append(NewScalar(it))
		}
		return n
	case int:
		return NewScalar(int64(val))
	default:
		return NewScalar(val)
	}
}

// MarshalJSON writes the tree with members in document order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.Kind {
	case KindArray:
		buf.WriteByte('[')
		for i, it := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject, KindRef:
		buf.WriteByte('{')
		for i, k := range n.Keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			buf.Write(key)
			buf.WriteByte(':')
			if err := n.Fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		b, err := json.Marshal(n.Value)
		if err != nil {
			return fmt.Errorf("encode scalar %v: %w", n.Value, err)
		}
		buf.Write(b)
	}
	return nil
}

// Indented renders the tree as indented JSON text.
func (n *Node) Indented() (string, error) {
	raw, err := n.MarshalJSON()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}
