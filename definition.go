package loom

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the YAML form of a workflow: the whole graph plus per-node
// runner configuration in one file.
type Definition struct {
	Name  string           `yaml:"name"`
	Nodes []NodeDefinition `yaml:"nodes"`
}

type NodeDefinition struct {
	ID        string                 `yaml:"id"`
	Name      string                 `yaml:"name,omitempty"`
	Kind      string                 `yaml:"kind"`
	Mode      string                 `yaml:"mode,omitempty"`
	DependsOn []string               `yaml:"depends_on,omitempty"`
	Config    map[string]interface{} `yaml:"config,omitempty"`
}

// LoadDefinition reads a workflow definition file and returns a validated
// graph.
func LoadDefinition(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes YAML into a graph and validates it; any
// validation errors are joined into one.
func ParseDefinition(data []byte) (*Graph, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return def.Graph()
}

// Graph builds and validates the workflow graph described by the
// definition.
func (d *Definition) Graph() (*Graph, error) {
	g := NewGraph()

	for _, nd := range d.Nodes {
		if err := g.AddNode(nd.toNode()); err != nil {
			return nil, err
		}
	}

	if errs := g.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("definition %q invalid: %w", d.Name, errors.Join(errs...))
	}
	return g, nil
}

func (nd *NodeDefinition) toNode() Node {
	name := nd.Name
	if name == "" {
		name = nd.ID
	}

	mode := ModeSequential
	if nd.Mode != "" {
		mode = ExecutionMode(nd.Mode)
	}

	return Node{
		ID:        nd.ID,
		Name:      name,
		Kind:      NodeKind(nd.Kind),
		Mode:      mode,
		DependsOn: nd.DependsOn,
		Config:    nd.Config,
	}
}
