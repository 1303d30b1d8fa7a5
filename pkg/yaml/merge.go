package yaml

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/parser"
)

// MergeRootFromValue parses YAML data, merges a value at the root,
// and returns the result. Comments and structure in the original data are preserved.
func MergeRootFromValue(data []byte, v any) ([]byte, error) {
	file, err := parser.ParseBytes(data, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	node, err := yaml.ValueToNode(v, DefaultEncoderOptions...)
	if err != nil {
		return nil, fmt.Errorf("convert value to node: %w", err)
	}

	rootPath := NewPathBuilder().Root().Build()
	err = rootPath.MergeFromNode(file, node)
	if err != nil {
		return nil, fmt.Errorf("merge yaml: %w", err)
	}

	return []byte(file.String()), nil
}

// ReplaceChildFromValue replaces the value of a root-level key, preserving
// comments and structure elsewhere in the document. If the key does not
// exist it is merged in at the root instead.
func ReplaceChildFromValue(data []byte, key string, v any) ([]byte, error) {
	file, err := parser.ParseBytes(data, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	node, err := yaml.ValueToNode(v, DefaultEncoderOptions...)
	if err != nil {
		return nil, fmt.Errorf("convert value to node: %w", err)
	}

	childPath := NewPathBuilder().Root().Child(key).Build()

	err = childPath.ReplaceWithNode(file, node)
	if err != nil {
		return MergeRootFromValue(data, map[string]any{key: v})
	}

	return []byte(file.String()), nil
}
