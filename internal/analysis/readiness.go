package analysis

import (
	"regexp"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// File-path signals for operational readiness. A change set that ships code
// without touching runbooks or monitoring leaves responders blind.
var (
	runbookPathPattern    = regexp.MustCompile(`(?i)runbook|playbook|docs/runbooks?|oncall`)
	monitoringPathPattern = regexp.MustCompile(`(?i)alert|monitor|grafana|dashboard|prometheus|sli|slo`)
)

// assessReadiness derives the readiness delta for a change set from the
// union of touched file paths and graph ownership of the touched services.
func assessReadiness(files []string, services []string, g *graph.Graph) *models.ReadinessDelta {
	delta := &models.ReadinessDelta{
		RunbookUpdated:    matchReadiness(files, runbookPathPattern),
		MonitoringUpdated: matchReadiness(files, monitoringPathPattern),
		OwnershipKnown:    assessOwnership(services, g),
	}
	if delta.RunbookUpdated == models.ReadinessMissing {
		delta.Notes = append(delta.Notes, "No runbook or playbook updated in this change set")
	}
	if delta.MonitoringUpdated == models.ReadinessMissing {
		delta.Notes = append(delta.Notes, "No monitoring or alerting change shipped with this change set")
	}
	if delta.OwnershipKnown == models.ReadinessMissing {
		delta.Notes = append(delta.Notes, "At least one touched service has no team or owner on record")
	}
	return delta
}

func matchReadiness(files []string, pattern *regexp.Regexp) models.ReadinessState {
	if len(files) == 0 {
		return models.ReadinessUnknown
	}
	for _, path := range files {
		if pattern.MatchString(path) {
			return models.ReadinessUpdated
		}
	}
	return models.ReadinessMissing
}

func assessOwnership(services []string, g *graph.Graph) models.ReadinessState {
	if len(services) == 0 {
		return models.ReadinessUnknown
	}
	if g == nil {
		return models.ReadinessMissing
	}
	for _, id := range services {
		node := g.GetService(id)
		if node == nil || (node.Team == "" && node.Owner == "") {
			return models.ReadinessMissing
		}
	}
	return models.ReadinessUpdated
}
