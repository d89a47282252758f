package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/levyline/taxflow/pkg/api"
)

// Definitions is the content of a definitions file: workflow definitions and
// the script or HTTP functions they call
type Definitions struct {
	Workflows []*api.WorkflowDefinition `json:"workflows"`
	Functions []*api.FunctionDefinition `json:"functions"`
}

var (
	ErrReadDefinitions  = errors.New("failed to read definitions")
	ErrParseDefinitions = errors.New("failed to parse definitions")
)

var definitionExts = []string{".yaml", ".yml", ".json"}

// LoadDefinitionsDir loads and merges every definitions file in dir, in
// file name order
func LoadDefinitionsDir(dir string) (*Definitions, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadDefinitions, err)
	}

	res := &Definitions{}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !slices.Contains(definitionExts, ext) {
			continue
		}
		defs, err := LoadDefinitionsFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		res.Workflows = append(res.Workflows, defs.Workflows...)
		res.Functions = append(res.Functions, defs.Functions...)
	}
	return res, nil
}

// LoadDefinitionsFile loads a single YAML or JSON definitions file
func LoadDefinitionsFile(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadDefinitions, err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}
	return defs, nil
}

// ParseDefinitions decodes YAML (a superset of JSON) into definitions and
// validates each of them
func ParseDefinitions(data []byte) (*Definitions, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseDefinitions, err)
	}

	js, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseDefinitions, err)
	}

	var defs Definitions
	if err := json.Unmarshal(js, &defs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseDefinitions, err)
	}

	for _, fn := range defs.Functions {
		if err := fn.Validate(); err != nil {
			return nil, err
		}
	}
	for _, wf := range defs.Workflows {
		if err := wf.Validate(); err != nil {
			return nil, err
		}
	}
	return &defs, nil
}
