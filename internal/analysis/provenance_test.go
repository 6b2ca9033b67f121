package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

func TestExtractEventEvidenceOrder(t *testing.T) {
	event := &models.ChangeEvent{
		ID:         "ev-1",
		Summary:    "Deploy payments",
		Source:     models.SourceGitHub,
		Repository: "org/payments",
		CommitSHA:  "abcdef1234567890",
		PRNumber:   42,
		PRURL:      "https://github.com/org/payments/pull/42",
		Metadata:   map[string]string{"pipeline_url": "https://ci.example.com/run/9"},
	}

	links := ExtractEventEvidence(event)
	require.Len(t, links, 4)

	assert.Equal(t, models.EvidenceTypeEvent, links[0].Type)
	assert.Equal(t, "/api/v1/events/ev-1", links[0].URL)
	assert.Equal(t, "Deploy payments", links[0].Label)

	assert.Equal(t, models.EvidenceTypePullRequest, links[1].Type)
	assert.Equal(t, "PR #42", links[1].Label)

	assert.Equal(t, models.EvidenceTypeCommit, links[2].Type)
	assert.Equal(t, "Commit abcdef12", links[2].Label)
	assert.Equal(t, "https://github.com/org/payments/commit/abcdef1234567890", links[2].URL)

	assert.Equal(t, models.EvidenceTypePipelineRun, links[3].Type)
	assert.Equal(t, "Pipeline", links[3].Label)
}

func TestExtractEventEvidenceDeduplicates(t *testing.T) {
	event := &models.ChangeEvent{
		ID:       "ev-1",
		Summary:  "Change",
		PRURL:    "https://github.com/org/repo/pull/7",
		PRNumber: 7,
		Metadata: map[string]string{"pr_url": "https://github.com/org/repo/pull/7"},
	}

	links := ExtractEventEvidence(event)
	// The metadata pr_url has a different label, so it survives dedup; the
	// exact same (type, url, label) triple would not.
	prLinks := 0
	seen := map[string]bool{}
	for _, link := range links {
		key := string(link.Type) + "|" + link.URL + "|" + link.Label
		assert.False(t, seen[key], "duplicate evidence link %q", key)
		seen[key] = true
		if link.Type == models.EvidenceTypePullRequest {
			prLinks++
		}
	}
	assert.Equal(t, 2, prLinks)
}

func TestSynthesizeCommitURLGitLab(t *testing.T) {
	event := &models.ChangeEvent{
		Source:     models.SourceGitLab,
		Repository: "group/project",
		CommitSHA:  "deadbeef",
	}
	assert.Equal(t, "https://gitlab.com/group/project/-/commit/deadbeef", synthesizeCommitURL(event))
}

func TestSynthesizeCommitURLFullRepositoryURL(t *testing.T) {
	event := &models.ChangeEvent{
		Source:     models.SourceGitHub,
		Repository: "https://github.example.com/org/repo/",
		CommitSHA:  "deadbeef",
	}
	assert.Equal(t, "https://github.example.com/org/repo/commit/deadbeef", synthesizeCommitURL(event))
}

func TestSynthesizeCommitURLNoRepository(t *testing.T) {
	event := &models.ChangeEvent{CommitSHA: "deadbeef"}
	assert.Equal(t, "", synthesizeCommitURL(event))
}

func TestClassifyMetadataURLTerraformRun(t *testing.T) {
	assert.Equal(t, models.EvidenceTypeTerraformRun, classifyMetadataURL("run_url", models.SourceTerraform))
	assert.Equal(t, models.EvidenceTypeDeploymentRun, classifyMetadataURL("run_url", models.SourceGitHub))
	assert.Equal(t, models.EvidenceTypePipelineRun, classifyMetadataURL("pipeline_url", models.SourceGitHub))
	assert.Equal(t, models.EvidenceTypePullRequest, classifyMetadataURL("mr_url", models.SourceGitLab))
	assert.Equal(t, models.EvidenceTypeOther, classifyMetadataURL("compare_url", models.SourceGitHub))
}

func TestInferEventCanonicalURLPriority(t *testing.T) {
	event := &models.ChangeEvent{
		CanonicalURL: "https://example.com/change/1",
		PRURL:        "https://github.com/org/repo/pull/7",
	}
	assert.Equal(t, "https://example.com/change/1", InferEventCanonicalURL(event))

	event.CanonicalURL = ""
	assert.Equal(t, "https://github.com/org/repo/pull/7", InferEventCanonicalURL(event))

	event.PRURL = ""
	event.Repository = "org/repo"
	event.CommitSHA = "deadbeef"
	assert.Equal(t, "https://github.com/org/repo/commit/deadbeef", InferEventCanonicalURL(event))

	event.CommitSHA = ""
	event.Metadata = map[string]string{"compare_url": "https://github.com/org/repo/compare/a...b"}
	assert.Equal(t, "https://github.com/org/repo/compare/a...b", InferEventCanonicalURL(event))

	event.Metadata = nil
	assert.Equal(t, "", InferEventCanonicalURL(event))
}

func TestShortSHA(t *testing.T) {
	assert.Equal(t, "abcdef12", shortSHA("abcdef1234567890"))
	assert.Equal(t, "abc", shortSHA("abc"))
}
