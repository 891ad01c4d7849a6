package jsontree

import (
	"fmt"
	"strings"
)

// SegmentKind discriminates path segments.
type SegmentKind uint8

const (
	// SegKey descends into an object by key.
	SegKey SegmentKind = iota
	// SegIndex descends into an array by position.
	SegIndex
	// SegMatch descends into an array by element identity: the element
	// whose scalar field MatchKey equals MatchValue. This is the Go-native
	// form of the predicate expression `list[?(@.key=='value')]`.
	SegMatch
)

// Segment is one navigation step of a Path.
type Segment struct {
	Kind       SegmentKind
	Key        string
	Index      int
	MatchKey   string
	MatchValue string
}

func KeySeg(key string) Segment  { return Segment{Kind: SegKey, Key: key} }
func IndexSeg(i int) Segment     { return Segment{Kind: SegIndex, Index: i} }
func MatchSeg(k, v string) Segment {
	return Segment{Kind: SegMatch, MatchKey: k, MatchValue: v}
}

// Path addresses a node from the root. An empty Path is the root itself.
type Path []Segment

// Child extends the path by one segment without sharing backing storage
// with the receiver.
func (p Path) Child(seg Segment) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = seg
	return child
}

// Split separates the path into its parent and final segment. Splitting an
// empty path reports ok=false; callers treat that as targeting the root.
func (p Path) Split() (parent Path, last Segment, ok bool) {
	if len(p) == 0 {
		return nil, Segment{}, false
	}
	return p[:len(p)-1], p[len(p)-1], true
}

// Bracketed reports whether the final segment addresses an array element.
func (p Path) Bracketed() bool {
	if len(p) == 0 {
		return false
	}
	last := p[len(p)-1]
	return last.Kind == SegIndex || last.Kind == SegMatch
}

// String renders the path for error context, e.g. "names[language=eng].value".
func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	var sb strings.Builder
	for i, seg := range p {
		switch seg.Kind {
		case SegKey:
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(seg.Key)
		case SegIndex:
			fmt.Fprintf(&sb, "[%d]", seg.Index)
		case SegMatch:
			fmt.Fprintf(&sb, "[%s=%s]", seg.MatchKey, seg.MatchValue)
		}
	}
	return sb.String()
}

// Resolve walks the path from v, returning the addressed node.
func (v *Value) Resolve(p Path) (*Value, bool) {
	current := v
	for _, seg := range p {
		if current == nil {
			return nil, false
		}
		switch seg.Kind {
		case SegKey:
			child, ok := current.Get(seg.Key)
			if !ok {
				return nil, false
			}
			current = child
		case SegIndex:
			items := current.Items()
			if seg.Index < 0 || seg.Index >= len(items) {
				return nil, false
			}
			current = items[seg.Index]
		case SegMatch:
			matched := false
			for _, item := range current.Items() {
				if field, ok := item.Get(seg.MatchKey); ok &&
					field.Kind() == String && field.AsString() == seg.MatchValue {
					current = item
					matched = true
					break
				}
			}
			if !matched {
				return nil, false
			}
		}
	}
	return current, true
}

// Put writes child under key on the object addressed by parent. A missing
// or non-object parent is a bad path.
func (v *Value) Put(parent Path, key string, child *Value) error {
	target, ok := v.Resolve(parent)
	if !ok {
		return fmt.Errorf("path %s does not resolve", parent)
	}
	if target.Kind() != Object {
		return fmt.Errorf("path %s is not an object", parent)
	}
	target.Set(key, child)
	return nil
}

// AppendAt appends item to the array addressed by p.
func (v *Value) AppendAt(p Path, item *Value) error {
	target, ok := v.Resolve(p)
	if !ok {
		return fmt.Errorf("path %s does not resolve", p)
	}
	if target.Kind() != Array {
		return fmt.Errorf("path %s is not an array", p)
	}
	target.Append(item)
	return nil
}

// SetAt replaces the element addressed by the final index/match segment of p.
func (v *Value) SetAt(p Path, item *Value) error {
	parent, last, ok := p.Split()
	if !ok {
		return fmt.Errorf("cannot replace the root")
	}
	switch last.Kind {
	case SegKey:
		return v.Put(parent, last.Key, item)
	case SegIndex:
		target, ok := v.Resolve(parent)
		if !ok || target.Kind() != Array {
			return fmt.Errorf("path %s is not an array", parent)
		}
		items := target.Items()
		if last.Index < 0 || last.Index >= len(items) {
			return fmt.Errorf("index %d out of range at %s", last.Index, parent)
		}
		items[last.Index] = item
		return nil
	case SegMatch:
		target, ok := v.Resolve(parent)
		if !ok || target.Kind() != Array {
			return fmt.Errorf("path %s is not an array", parent)
		}
		for i, elem := range target.Items() {
			if field, ok := elem.Get(last.MatchKey); ok &&
				field.Kind() == String && field.AsString() == last.MatchValue {
				target.arr[i] = item
				return nil
			}
		}
		return fmt.Errorf("no element matches %s at %s", last, parent)
	}
	return fmt.Errorf("invalid segment")
}

func (s Segment) String() string {
	switch s.Kind {
	case SegKey:
		return s.Key
	case SegIndex:
		return fmt.Sprintf("[%d]", s.Index)
	case SegMatch:
		return fmt.Sprintf("[%s=%s]", s.MatchKey, s.MatchValue)
	}
	return "?"
}
