package loom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderPipelineYAML = `
name: order-pipeline
nodes:
  - id: extract
    kind: phase
    mode: parallel
  - id: transform
    name: Transform Orders
    kind: phase
    mode: parallel
    depends_on: [extract]
    config:
      batch_size: 500
  - id: audit
    kind: validation
    depends_on: [transform]
`

func TestParseDefinition(t *testing.T) {
	g, err := ParseDefinition([]byte(orderPipelineYAML))
	require.NoError(t, err)

	require.True(t, g.Sealed())
	assert.Equal(t, 3, g.Len())

	transform, ok := g.Node("transform")
	require.True(t, ok)
	assert.Equal(t, "Transform Orders", transform.Name)
	assert.Equal(t, ModeParallel, transform.Mode)
	assert.Equal(t, []string{"extract"}, transform.DependsOn)
	assert.Equal(t, 500, transform.Config["batch_size"])

	// omitted fields default: name from id, sequential mode
	audit, ok := g.Node("audit")
	require.True(t, ok)
	assert.Equal(t, "audit", audit.Name)
	assert.Equal(t, ModeSequential, audit.Mode)
	assert.Equal(t, NodeKindValidation, audit.Kind)
}

func TestParseDefinition_InvalidKind(t *testing.T) {
	_, err := ParseDefinition([]byte(`
name: broken
nodes:
  - id: a
    kind: mystery
`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseDefinition_Cycle(t *testing.T) {
	_, err := ParseDefinition([]byte(`
name: broken
nodes:
  - id: a
    kind: phase
    depends_on: [b]
  - id: b
    kind: phase
    depends_on: [a]
`))
	require.Error(t, err)
	assert.True(t, IsCycle(err))
	assert.Contains(t, err.Error(), `"broken"`)
}

func TestParseDefinition_MalformedYAML(t *testing.T) {
	_, err := ParseDefinition([]byte("nodes: ["))
	assert.Error(t, err)
}

func TestLoadDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(orderPipelineYAML), 0o644))

	g, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	_, err = LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGraphDefinition_RoundTrip(t *testing.T) {
	g, err := ParseDefinition([]byte(orderPipelineYAML))
	require.NoError(t, err)

	def := GraphDefinition("order-pipeline", g)
	data, err := def.Marshal()
	require.NoError(t, err)

	again, err := ParseDefinition(data)
	require.NoError(t, err)

	assert.Equal(t, g.NodeIDs(), again.NodeIDs())
	for _, id := range g.NodeIDs() {
		want, _ := g.Node(id)
		got, _ := again.Node(id)
		assert.Equal(t, want.Kind, got.Kind, id)
		assert.Equal(t, want.Mode, got.Mode, id)
		assert.Equal(t, want.DependsOn, got.DependsOn, id)
	}
}
