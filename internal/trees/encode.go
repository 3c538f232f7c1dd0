package trees

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Encode serializes t as nested {"children":[...],"value":V} objects, using
// enc for node values. Keys are emitted in sorted order so the output is
// canonical whenever enc's output is.
//
// The traversal uses an explicit stack; depth is bounded only by memory.
func Encode[T any](t *Tree[T], enc func(T) ([]byte, error)) ([]byte, error) {
	type frame struct {
		node int
		next int
	}
	var buf bytes.Buffer
	stack := []frame{{node: 0}}
	buf.WriteString(`{"children":[`)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := t.children[top.node]
		if top.next < len(kids) {
			if top.next > 0 {
				buf.WriteByte(',')
			}
			child := kids[top.next]
			top.next++
			buf.WriteString(`{"children":[`)
			stack = append(stack, frame{node: child})
			continue
		}

		v, err := enc(t.values[top.node])
		if err != nil {
			return nil, fmt.Errorf("encode node %d: %w", top.node, err)
		}
		buf.WriteString(`],"value":`)
		buf.Write(v)
		buf.WriteByte('}')
		stack = stack[:len(stack)-1]
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler using encoding/json for values.
func (t *Tree[T]) MarshalJSON() ([]byte, error) {
	return Encode(t, func(v T) ([]byte, error) {
		return json.Marshal(v)
	})
}

// Print writes a compact text rendering of t: each node as
// "(value (child,child,))", leaves as "(value ())".
func Print[T any](w io.Writer, t *Tree[T]) error {
	type frame struct {
		node int
		next int
	}
	var buf bytes.Buffer
	stack := []frame{{node: 0}}
	fmt.Fprintf(&buf, "(%v (", t.values[0])

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := t.children[top.node]
		if top.next < len(kids) {
			child := kids[top.next]
			top.next++
			fmt.Fprintf(&buf, "(%v (", t.values[child])
			stack = append(stack, frame{node: child})
			continue
		}
		stack = stack[:len(stack)-1]
		buf.WriteString("))")
		if len(stack) > 0 {
			buf.WriteByte(',')
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}
