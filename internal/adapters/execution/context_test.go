package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/graph"
)

func pipelineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	nodes := []domain.Node{
		{ID: "extract", Kind: domain.NodeKindPhase, Mode: domain.ModeParallel},
		{ID: "transform", Kind: domain.NodeKindPhase, Mode: domain.ModeParallel, DependsOn: []string{"extract"}},
		{ID: "load", Kind: domain.NodeKindPhase, Mode: domain.ModeParallel, DependsOn: []string{"transform"}},
		{ID: "audit", Kind: domain.NodeKindValidation, Mode: domain.ModeParallel, DependsOn: []string{"extract"}},
	}
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
	require.Empty(t, g.Validate())
	return g
}

func TestNewContext_AllNodesPending(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)

	assert.Equal(t, domain.RunStatusNotStarted, ctx.Status())
	for _, id := range g.NodeIDs() {
		assert.Equal(t, domain.NodeStatusPending, ctx.State(id).Status)
	}
}

func TestRecordOutput_SecondWriteRejected(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)

	require.NoError(t, ctx.RecordOutput("extract", map[string]interface{}{"rows": 10}, []string{"rows.csv"}, nil))

	err := ctx.RecordOutput("extract", map[string]interface{}{"rows": 99}, []string{"other.csv"}, nil)
	require.True(t, domain.IsDuplicateWrite(err))

	// the slot holds exactly what the first write committed
	out, ok := ctx.Output("extract")
	require.True(t, ok)
	assert.JSONEq(t, `{"rows":10}`, string(out))
	assert.Equal(t, []string{"rows.csv"}, ctx.Artifacts("extract"))
}

func TestRecordOutput_ResetAllowsRewrite(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)

	require.NoError(t, ctx.RecordOutput("extract", "first", nil, nil))
	ctx.ResetOutput("extract")
	require.NoError(t, ctx.RecordOutput("extract", "second", nil, nil))

	out, _ := ctx.Output("extract")
	assert.JSONEq(t, `"second"`, string(out))
}

func TestRecordOutput_TracksContracts(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)

	require.NoError(t, ctx.RecordOutput("extract", nil, nil, []string{"orders-api"}))
	require.NoError(t, ctx.RecordOutput("transform", nil, nil, []string{"events-api"}))

	assert.Equal(t, []string{"orders-api", "events-api"}, ctx.ContractsTouched())
}

func TestResetOutput_ClearsContracts(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)

	require.NoError(t, ctx.RecordOutput("extract", nil, nil, []string{"orders-api"}))
	require.NoError(t, ctx.RecordOutput("transform", nil, nil, []string{"events-api"}))

	// reset-and-retry must not double-count the node's contracts
	ctx.ResetOutput("extract")
	assert.Equal(t, []string{"events-api"}, ctx.ContractsTouched())

	require.NoError(t, ctx.RecordOutput("extract", nil, nil, []string{"orders-api"}))
	assert.Equal(t, []string{"orders-api", "events-api"}, ctx.ContractsTouched())
}

func TestBuildNodeInput_AncestorOutputs(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, map[string]interface{}{"dataset": "orders"})

	require.NoError(t, ctx.RecordOutput("extract", map[string]interface{}{"rows": 10}, []string{"rows.csv"}, nil))
	require.NoError(t, ctx.RecordOutput("transform", map[string]interface{}{"rows": 8, "clean": true}, nil, nil))

	input, err := ctx.BuildNodeInput("load", g, nil)
	require.NoError(t, err)

	assert.Equal(t, "run-1", input.RunID)
	assert.Equal(t, "load", input.NodeID)

	// cumulative history: both transitive ancestors, not just the parent
	require.Contains(t, input.Outputs, "extract")
	require.Contains(t, input.Outputs, "transform")
	assert.Equal(t, []string{"rows.csv"}, input.Artifacts["extract"])

	// merged document folds global input then ancestors in topo order
	assert.JSONEq(t, `{"dataset":"orders","rows":8,"clean":true}`, string(input.Merged))
}

func TestBuildNodeInput_SkipsNullOutputs(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, map[string]interface{}{"dataset": "orders"})

	require.NoError(t, ctx.RecordOutput("extract", nil, nil, nil))

	input, err := ctx.BuildNodeInput("transform", g, nil)
	require.NoError(t, err)

	require.Contains(t, input.Outputs, "extract")
	assert.JSONEq(t, `{"dataset":"orders"}`, string(input.Merged))
}

func TestBuildNodeInput_UnknownNode(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)

	_, err := ctx.BuildNodeInput("ghost", g, nil)
	assert.True(t, domain.IsUnknownNode(err))
}

func TestBuildNodeInput_CarriesContracts(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)

	contracts := []domain.Contract{{Name: "orders-api", Version: domain.Version{Major: 1}}}
	input, err := ctx.BuildNodeInput("extract", g, contracts)
	require.NoError(t, err)

	require.Len(t, input.Contracts, 1)
	assert.Equal(t, "orders-api", input.Contracts[0].Name)
}

func TestReport(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)
	ctx.SetStatus(domain.RunStatusCompleted)

	started := time.Now().Add(-time.Minute)
	completed := started.Add(30 * time.Second)
	ctx.SetState(domain.NodeState{
		NodeID:      "extract",
		Status:      domain.NodeStatusCompleted,
		StartedAt:   &started,
		CompletedAt: &completed,
		RetryCount:  2,
	})

	report := ctx.Report(g, nil)

	require.Len(t, report.Nodes, 4)
	assert.Equal(t, domain.RunStatusCompleted, report.Status)

	byID := make(map[string]domain.NodeReport, len(report.Nodes))
	for _, nr := range report.Nodes {
		byID[nr.NodeID] = nr
	}

	assert.Equal(t, 3, byID["extract"].Attempts)
	assert.Equal(t, 30*time.Second, byID["extract"].Duration)

	// never-dispatched nodes report zero attempts
	assert.Equal(t, 0, byID["load"].Attempts)
	assert.Equal(t, domain.NodeStatusPending, byID["load"].Status)
}

func TestStates_ReturnsCopy(t *testing.T) {
	g := pipelineGraph(t)
	ctx := NewContext("run-1", g, nil)

	states := ctx.States()
	states["extract"] = domain.NodeState{NodeID: "extract", Status: domain.NodeStatusFailed}

	assert.Equal(t, domain.NodeStatusPending, ctx.State("extract").Status)
}
