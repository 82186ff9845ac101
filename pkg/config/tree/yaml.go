package tree

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when the document root is not a mapping.
var ErrNotMapping = errors.New("config tree: document root must be a mapping")

// Parse converts a YAML document into a tree rooted at an unnamed node. An
// empty document yields an empty root.
func Parse(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	root := New("", "")
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return root, nil
	}
	top := doc.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	if err := fill(root, top); err != nil {
		return nil, err
	}
	return root, nil
}

// fill appends the pairs of a mapping to parent.
func fill(parent *Node, mapping *yaml.Node) error {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: keys must be scalars", key.Line)
		}
		if key.Value == SelfKey {
			if value.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: %q takes a scalar", key.Line, SelfKey)
			}
			parent.Value = value.Value
			continue
		}

		if value.Kind == yaml.SequenceNode {
			for _, item := range value.Content {
				if err := attach(parent, key.Value, item); err != nil {
					return err
				}
			}
			continue
		}
		if err := attach(parent, key.Value, value); err != nil {
			return err
		}
	}
	return nil
}

func attach(parent *Node, name string, value *yaml.Node) error {
	if value.Kind == yaml.AliasNode && value.Alias != nil {
		value = value.Alias
	}
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			parent.Add(name, "")
		} else {
			parent.Add(name, value.Value)
		}
		return nil
	case yaml.MappingNode:
		return fill(parent.Add(name, ""), value)
	default:
		return fmt.Errorf("line %d: unsupported value for %q", value.Line, name)
	}
}
