package crdt

import (
	"fmt"
	"sort"
	"strings"
)

// SortedMarshal returns the JSON view of elem with object keys sorted, so that replicas
// with the same contents produce the same bytes.
func SortedMarshal(elem Element) string {
	return toJSON(elem, true)
}

func toJSON(elem Element, sorted bool) string {
	var sb strings.Builder
	writeJSON(&sb, elem, sorted)
	return sb.String()
}

func writeJSON(sb *strings.Builder, elem Element, sorted bool) {
	switch e := elem.(type) {
	case *Primitive:
		sb.WriteString(e.marshalValue())
	case *Counter:
		sb.WriteString(e.marshalValue())
	case *Object:
		keys := e.Keys()
		if sorted {
			sort.Strings(keys)
		}
		sb.WriteString("{")
		for i, key := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(`"` + EscapeString(key) + `":`)
			writeJSON(sb, e.Get(key), sorted)
		}
		sb.WriteString("}")
	case *Array:
		sb.WriteString("[")
		for i, child := range e.Elements() {
			if i > 0 {
				sb.WriteString(",")
			}
			writeJSON(sb, child, sorted)
		}
		sb.WriteString("]")
	case *Text:
		sb.WriteString(e.marshalValue())
	case *Tree:
		writeTreeNodeJSON(sb, e.Root())
	default:
		panic(fmt.Sprintf("toJSON: unexpected element %T", elem))
	}
}

func writeTreeNodeJSON(sb *strings.Builder, node *TreeNode) {
	if node.IsText() {
		fmt.Fprintf(sb, `{"type":"%s","value":"%s"}`, node.Type(), EscapeString(node.Value))
		return
	}
	fmt.Fprintf(sb, `{"type":"%s","children":[`, node.Type())
	for i, child := range node.Index.Children() {
		if i > 0 {
			sb.WriteString(",")
		}
		writeTreeNodeJSON(sb, child.Value)
	}
	sb.WriteString("]")
	if node.Attrs != nil && node.Attrs.Len() > 0 {
		sb.WriteString(`,"attributes":` + node.Attrs.Marshal())
	}
	sb.WriteString("}")
}

// EscapeString escapes a string to be embedded in a JSON string literal.
func EscapeString(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}
