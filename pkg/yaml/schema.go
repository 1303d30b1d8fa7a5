package yaml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"
)

const moduleBase = "github.com/partnerwatch/ppscan"

// SchemaGenerator generates a JSON schema for a configuration type using
// [github.com/invopop/jsonschema]. Go doc comments from the provided packages
// are included as schema descriptions.
type SchemaGenerator struct {
	value any
	pkgs  []string
}

// NewSchemaGenerator creates a [SchemaGenerator] for the given value.
// The pkgs are import paths within this module whose Go comments become
// schema descriptions.
func NewSchemaGenerator(value any, pkgs ...string) *SchemaGenerator {
	return &SchemaGenerator{
		value: value,
		pkgs:  pkgs,
	}
}

// Generate reflects the value into a JSON schema document. It is intended to
// run via go:generate, so package directories are resolved relative to the
// enclosing module root.
func (g *SchemaGenerator) Generate() ([]byte, error) {
	root, err := moduleRoot()
	if err != nil {
		return nil, err
	}

	r := &jsonschema.Reflector{
		ExpandedStruct: true,
	}

	for _, pkg := range g.pkgs {
		rel := strings.TrimPrefix(pkg, moduleBase)

		err := r.AddGoComments(pkg, filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("add go comments for %s: %w", pkg, err)
		}
	}

	jss := r.Reflect(g.value)

	jsData, err := json.MarshalIndent(jss, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return jsData, nil
}

// moduleRoot walks up from the working directory to the directory holding
// go.mod.
func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for {
		_, err := os.Stat(filepath.Join(dir, "go.mod"))
		if err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found in any parent directory")
		}

		dir = parent
	}
}
