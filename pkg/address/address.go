// Package address implements the management address model: an ordered
// path of node-type/node-name segments into the management tree.
package address

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyAddress is returned when moving to the parent of an empty address.
var ErrEmptyAddress = errors.New("the address is empty")

// Node is a single address segment. An empty Name means the node type has
// been chosen but the name is still pending.
type Node struct {
	Type string
	Name string
}

// String formats the node as "type=name" (or "type" when the name is pending).
func (n Node) String() string {
	if n.Name == "" {
		return n.Type
	}
	return n.Type + "=" + Quote(n.Name)
}

// Address is an ordered sequence of nodes. Only the last node may lack a
// name. The zero value is the root address.
type Address struct {
	nodes []Node
}

// New returns an address built from complete type/name pairs.
// It panics if any node lacks a type or a name; use it for literals.
func New(nodes ...Node) *Address {
	a := &Address{}
	for _, n := range nodes {
		if n.Type == "" || n.Name == "" {
			panic(fmt.Sprintf("address.New: incomplete node %q", n.String()))
		}
		a.nodes = append(a.nodes, n)
	}
	return a
}

// Clone returns a deep copy. Cloning nil yields an empty address.
func (a *Address) Clone() *Address {
	if a == nil {
		return &Address{}
	}
	return &Address{nodes: append([]Node(nil), a.nodes...)}
}

// Reset moves the address to the root.
func (a *Address) Reset() {
	a.nodes = a.nodes[:0]
}

// IsEmpty reports whether the address is the root.
func (a *Address) IsEmpty() bool {
	return a == nil || len(a.nodes) == 0
}

// Len returns the number of nodes, including a trailing name-less type.
func (a *Address) Len() int {
	if a == nil {
		return 0
	}
	return len(a.nodes)
}

// Nodes returns a copy of the node sequence.
func (a *Address) Nodes() []Node {
	if a == nil {
		return nil
	}
	return append([]Node(nil), a.nodes...)
}

// EndsOnType reports whether the last node has a type but no name yet.
func (a *Address) EndsOnType() bool {
	if a.IsEmpty() {
		return false
	}
	return a.nodes[len(a.nodes)-1].Name == ""
}

// NodeType returns the type of the last node, or "" for the root.
func (a *Address) NodeType() string {
	if a.IsEmpty() {
		return ""
	}
	return a.nodes[len(a.nodes)-1].Type
}

// NodeName returns the name of the last node, or "" when the address is
// empty or ends on a type.
func (a *Address) NodeName() string {
	if a.IsEmpty() {
		return ""
	}
	return a.nodes[len(a.nodes)-1].Name
}

// ToNodeType appends a name-less node of the given type.
func (a *Address) ToNodeType(nodeType string) error {
	if a.EndsOnType() {
		return fmt.Errorf("the address already ends on node type %q", a.NodeType())
	}
	a.nodes = append(a.nodes, Node{Type: nodeType})
	return nil
}

// ToNodeName completes the trailing node type with a name.
func (a *Address) ToNodeName(name string) error {
	if !a.EndsOnType() {
		return errors.New("the address does not end on a node type")
	}
	a.nodes[len(a.nodes)-1].Name = name
	return nil
}

// ToNode moves to the node type=name. When the address ends on a type, that
// pending node is replaced by the complete pair; otherwise the pair is appended.
func (a *Address) ToNode(nodeType, name string) {
	if a.EndsOnType() {
		a.nodes[len(a.nodes)-1] = Node{Type: nodeType, Name: name}
		return
	}
	a.nodes = append(a.nodes, Node{Type: nodeType, Name: name})
}

// ToParentNode removes the last node.
func (a *Address) ToParentNode() error {
	if a.IsEmpty() {
		return ErrEmptyAddress
	}
	a.nodes = a.nodes[:len(a.nodes)-1]
	return nil
}

// Equal reports whether both addresses hold the same type/name sequence.
func (a *Address) Equal(b *Address) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if a.nodes[i] != b.nodes[i] {
			return false
		}
	}
	return true
}

// String formats the address in command-line syntax, e.g.
// "/subsystem=logging/logger=org.jboss". The root formats as "/".
func (a *Address) String() string {
	if a.IsEmpty() {
		return "/"
	}
	var b strings.Builder
	for _, n := range a.nodes {
		b.WriteByte('/')
		b.WriteString(n.String())
	}
	return b.String()
}

// specialChars are the characters that terminate or alter an unquoted token
// on the command line.
const specialChars = " \t/,:=(){}[]\"\\>;!^"

// Quote returns name unchanged when it can be typed bare on the command
// line, otherwise wrapped in double quotes with '"' and '\' escaped.
func Quote(name string) string {
	if name != "" && !strings.ContainsAny(name, specialChars) {
		return name
	}
	var b strings.Builder
	b.Grow(len(name) + 2)
	b.WriteByte('"')
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch == '"' || ch == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	b.WriteByte('"')
	return b.String()
}

// Escape backslash-escapes the special characters of name, so it can be
// typed without quotes.
func Escape(name string) string {
	if !strings.ContainsAny(name, specialChars) {
		return name
	}
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i := 0; i < len(name); i++ {
		if strings.IndexByte(specialChars, name[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(name[i])
	}
	return b.String()
}

// Unquote reverses Quote and also removes backslash escapes from bare text.
// Unterminated quotes are tolerated: the remaining text is kept.
func Unquote(text string) string {
	if !strings.ContainsAny(text, "\"\\") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch ch {
		case '"':
			continue
		case '\\':
			if i+1 < len(text) {
				i++
				b.WriteByte(text[i])
			}
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
