package analysis

import (
	"fmt"
	"strings"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// metadataURLKeys lists the recognized metadata keys carrying URLs, in the
// order they are emitted and consulted for canonical-URL inference.
var metadataURLKeys = []string{
	"run_url", "pipeline_url", "deployment_url", "workflow_url",
	"mr_url", "pr_url", "compare_url",
}

// ExtractEventEvidence derives provenance links from an event's attributes.
// Links are emitted in a fixed order and deduplicated by (type, url, label).
func ExtractEventEvidence(event *models.ChangeEvent) []models.EvidenceLink {
	var links []models.EvidenceLink
	seen := map[string]bool{}
	add := func(link models.EvidenceLink) {
		key := string(link.Type) + "|" + link.URL + "|" + link.Label
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, link)
	}

	add(models.EvidenceLink{
		Type:  models.EvidenceTypeEvent,
		Label: event.Summary,
		URL:   "/api/v1/events/" + event.ID,
	})

	if event.PRURL != "" {
		label := "Pull request"
		if event.PRNumber > 0 {
			label = fmt.Sprintf("PR #%d", event.PRNumber)
		}
		add(models.EvidenceLink{Type: models.EvidenceTypePullRequest, Label: label, URL: event.PRURL})
	}

	if event.CommitSHA != "" {
		add(models.EvidenceLink{
			Type:  models.EvidenceTypeCommit,
			Label: "Commit " + shortSHA(event.CommitSHA),
			URL:   synthesizeCommitURL(event),
		})
	}

	if event.CanonicalURL != "" {
		add(models.EvidenceLink{Type: models.EvidenceTypeOther, Label: "Canonical link", URL: event.CanonicalURL})
	}

	for _, key := range metadataURLKeys {
		value := event.Metadata[key]
		if value == "" {
			continue
		}
		add(models.EvidenceLink{
			Type:  classifyMetadataURL(key, event.Source),
			Label: metadataURLLabel(key),
			URL:   value,
		})
	}

	return links
}

// InferEventCanonicalURL picks the best single URL representing the event:
// the explicit canonical URL, then the PR, then the synthesized commit URL,
// then the first recognized metadata URL.
func InferEventCanonicalURL(event *models.ChangeEvent) string {
	if event.CanonicalURL != "" {
		return event.CanonicalURL
	}
	if event.PRURL != "" {
		return event.PRURL
	}
	if event.CommitSHA != "" {
		if url := synthesizeCommitURL(event); url != "" {
			return url
		}
	}
	for _, key := range metadataURLKeys {
		if value := event.Metadata[key]; value != "" {
			return value
		}
	}
	return ""
}

// synthesizeCommitURL builds a commit URL from the repository field, which
// may be a full URL or an org/repo shorthand. GitLab uses the /-/commit/
// path form; everything else gets the GitHub form.
func synthesizeCommitURL(event *models.ChangeEvent) string {
	if event.Repository == "" {
		return ""
	}
	base := strings.TrimSuffix(event.Repository, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		host := "https://github.com/"
		if event.Source == models.SourceGitLab {
			host = "https://gitlab.com/"
		}
		base = host + base
	}
	if event.Source == models.SourceGitLab {
		return base + "/-/commit/" + event.CommitSHA
	}
	return base + "/commit/" + event.CommitSHA
}

func classifyMetadataURL(key string, source models.Source) models.EvidenceType {
	switch key {
	case "run_url":
		if source == models.SourceTerraform {
			return models.EvidenceTypeTerraformRun
		}
		return models.EvidenceTypeDeploymentRun
	case "pipeline_url":
		return models.EvidenceTypePipelineRun
	case "deployment_url", "workflow_url":
		return models.EvidenceTypeDeploymentRun
	case "mr_url", "pr_url":
		return models.EvidenceTypePullRequest
	default:
		return models.EvidenceTypeOther
	}
}

func metadataURLLabel(key string) string {
	switch key {
	case "run_url":
		return "Run"
	case "pipeline_url":
		return "Pipeline"
	case "deployment_url":
		return "Deployment"
	case "workflow_url":
		return "Workflow run"
	case "mr_url":
		return "Merge request"
	case "pr_url":
		return "Pull request"
	case "compare_url":
		return "Diff comparison"
	default:
		return key
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
