// Package tree holds the engine settings as an ordered tree of named nodes.
//
// Paths address nodes with slash-separated names ("security/plain/login"),
// always taking the first child of a given name at each step. Repeated
// names are allowed and keep document order, which is how a configuration
// lists several publish or subscribe sections.
//
// Trees are built from YAML with Parse or Load:
//
//	server:
//	  heartbeat: 1
//	publish:
//	  - location: ./outbox
//	    alias: /
//	security:
//	  plain:
//	    _: 1
//	    account:
//	      - login: guest
//	        password: guest
//
// Mapping keys become children in order and scalars become values. A
// sequence yields one child per element, all named after the key. The key
// "_" inside a mapping sets the value of the node that owns the mapping.
package tree

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SelfKey is the mapping key that assigns a value to its parent node.
const SelfKey = "_"

// Node is one named setting with an optional value and ordered children.
type Node struct {
	Name     string
	Value    string
	Children []*Node
}

// New returns a detached node.
func New(name, value string) *Node {
	return &Node{Name: name, Value: value}
}

// Add appends a child and returns it.
func (n *Node) Add(name, value string) *Node {
	child := New(name, value)
	n.Children = append(n.Children, child)
	return child
}

// Child returns the first child called name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Sections returns the direct children in order.
func (n *Node) Sections() []*Node {
	if n == nil {
		return nil
	}
	return n.Children
}

// All returns every direct child called name, in order.
func (n *Node) All(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func split(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Locate returns the node at path, or nil.
func (n *Node) Locate(path string) *Node {
	cur := n
	for _, name := range split(path) {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Resolve returns the value at path, or def when the node is missing or has
// no value.
func (n *Node) Resolve(path, def string) string {
	node := n.Locate(path)
	if node == nil || node.Value == "" {
		return def
	}
	return node.Value
}

// ResolveInt parses the value at path as an integer.
func (n *Node) ResolveInt(path string, def int64) int64 {
	v := n.Resolve(path, "")
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

// ResolveBool accepts 1/0, true/false, yes/no and on/off.
func (n *Node) ResolveBool(path string, def bool) bool {
	switch strings.ToLower(n.Resolve(path, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// ResolveDuration reads a bare integer as seconds and anything else as a Go
// duration ("250ms").
func (n *Node) ResolveDuration(path string, def time.Duration) time.Duration {
	v := n.Resolve(path, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

// SetPath sets the value at path, creating missing nodes.
func (n *Node) SetPath(path, value string) *Node {
	cur := n
	for _, name := range split(path) {
		next := cur.Child(name)
		if next == nil {
			next = cur.Add(name, "")
		}
		cur = next
	}
	cur.Value = value
	return cur
}

// String renders the tree one node per line, indented by depth.
func (n *Node) String() string {
	var b strings.Builder
	n.dump(&b, 0)
	return b.String()
}

func (n *Node) dump(b *strings.Builder, depth int) {
	for _, c := range n.Children {
		fmt.Fprintf(b, "%s%s", strings.Repeat("    ", depth), c.Name)
		if c.Value != "" {
			fmt.Fprintf(b, " = %q", c.Value)
		}
		b.WriteByte('\n')
		c.dump(b, depth+1)
	}
}

// Load reads and parses a YAML file.
func Load(file string) (*Node, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read config tree: %w", err)
	}
	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return root, nil
}
