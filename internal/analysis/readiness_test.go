package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

func TestAssessReadinessUpdated(t *testing.T) {
	g := graph.New()
	g.AddService(graph.ServiceNode{ID: "api", Team: "platform"})

	delta := assessReadiness(
		[]string{"main.go", "docs/runbooks/api.md", "alerts/api-latency.yaml"},
		[]string{"api"}, g)

	assert.Equal(t, models.ReadinessUpdated, delta.RunbookUpdated)
	assert.Equal(t, models.ReadinessUpdated, delta.MonitoringUpdated)
	assert.Equal(t, models.ReadinessUpdated, delta.OwnershipKnown)
	assert.Empty(t, delta.Notes)
}

func TestAssessReadinessMissingSignals(t *testing.T) {
	delta := assessReadiness([]string{"main.go", "handler.go"}, []string{"api"}, graph.New())

	assert.Equal(t, models.ReadinessMissing, delta.RunbookUpdated)
	assert.Equal(t, models.ReadinessMissing, delta.MonitoringUpdated)
	assert.Equal(t, models.ReadinessMissing, delta.OwnershipKnown)
	assert.Len(t, delta.Notes, 3)
}

func TestAssessReadinessUnknownWithoutFiles(t *testing.T) {
	delta := assessReadiness(nil, nil, nil)
	assert.Equal(t, models.ReadinessUnknown, delta.RunbookUpdated)
	assert.Equal(t, models.ReadinessUnknown, delta.MonitoringUpdated)
	assert.Equal(t, models.ReadinessUnknown, delta.OwnershipKnown)
}

func TestAssessOwnershipRequiresEveryService(t *testing.T) {
	g := graph.New()
	g.AddService(graph.ServiceNode{ID: "owned", Owner: "alice"})
	g.AddService(graph.ServiceNode{ID: "orphan"})

	assert.Equal(t, models.ReadinessUpdated, assessOwnership([]string{"owned"}, g))
	assert.Equal(t, models.ReadinessMissing, assessOwnership([]string{"owned", "orphan"}, g))
	assert.Equal(t, models.ReadinessMissing, assessOwnership([]string{"unregistered"}, g))
	assert.Equal(t, models.ReadinessMissing, assessOwnership([]string{"owned"}, nil))
}

func TestReadinessPatternsAreCaseInsensitive(t *testing.T) {
	assert.Equal(t, models.ReadinessUpdated, matchReadiness([]string{"Docs/RUNBOOK.md"}, runbookPathPattern))
	assert.Equal(t, models.ReadinessUpdated, matchReadiness([]string{"infra/Grafana/dashboard.json"}, monitoringPathPattern))
	assert.Equal(t, models.ReadinessMissing, matchReadiness([]string{"service.go"}, monitoringPathPattern))
}
