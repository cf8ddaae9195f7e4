package loom

import (
	"gopkg.in/yaml.v3"
)

// GraphDefinition converts a graph back into its YAML-shaped definition,
// e.g. for exporting a programmatically built workflow.
func GraphDefinition(name string, g *Graph) *Definition {
	def := &Definition{Name: name}
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		def.Nodes = append(def.Nodes, NodeDefinition{
			ID:        node.ID,
			Name:      node.Name,
			Kind:      string(node.Kind),
			Mode:      string(node.Mode),
			DependsOn: node.DependsOn,
			Config:    node.Config,
		})
	}
	return def
}

// Marshal renders the definition as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}
