package models

import (
	"time"
)

// ChangeType represents the kind of change an event describes
type ChangeType string

const (
	ChangeTypeDeployment        ChangeType = "deployment"
	ChangeTypeConfigChange      ChangeType = "config_change"
	ChangeTypeInfraModification ChangeType = "infra_modification"
	ChangeTypeFeatureFlag       ChangeType = "feature_flag"
	ChangeTypeDBMigration       ChangeType = "db_migration"
	ChangeTypeCodeChange        ChangeType = "code_change"
	ChangeTypeRollback          ChangeType = "rollback"
	ChangeTypeScaling           ChangeType = "scaling"
	ChangeTypeSecurityPatch     ChangeType = "security_patch"
)

// Source represents the upstream system that observed the change
type Source string

const (
	SourceGitHub          Source = "github"
	SourceGitLab          Source = "gitlab"
	SourceAWSCodePipeline Source = "aws_codepipeline"
	SourceAWSECS          Source = "aws_ecs"
	SourceAWSLambda       Source = "aws_lambda"
	SourceKubernetes      Source = "kubernetes"
	SourceClaudeHook      Source = "claude_hook"
	SourceAgentHook       Source = "agent_hook"
	SourceManual          Source = "manual"
	SourceTerraform       Source = "terraform"
)

// Initiator represents who or what initiated the change
type Initiator string

const (
	InitiatorHuman      Initiator = "human"
	InitiatorAgent      Initiator = "agent"
	InitiatorAutomation Initiator = "automation"
	InitiatorUnknown    Initiator = "unknown"
)

// AuthorType classifies how the change content was authored.
// Distinct from Initiator: a human may initiate an AI-assisted change.
type AuthorType string

const (
	AuthorTypeHuman           AuthorType = "human"
	AuthorTypeAIAssisted      AuthorType = "ai_assisted"
	AuthorTypeAutonomousAgent AuthorType = "autonomous_agent"
)

// Status represents the lifecycle state of a change
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// ChangeEvent represents a single logical mutation observed in the environment
type ChangeEvent struct {
	ID                 string                 `json:"id"`
	Timestamp          time.Time              `json:"timestamp"`
	Service            string                 `json:"service"`
	AdditionalServices []string               `json:"additionalServices,omitempty"`
	ChangeType         ChangeType             `json:"changeType"`
	Source             Source                 `json:"source"`
	Initiator          Initiator              `json:"initiator"`
	InitiatorIdentity  string                 `json:"initiatorIdentity,omitempty"`
	AuthorType         AuthorType             `json:"authorType,omitempty"`
	Status             Status                 `json:"status"`
	Environment        string                 `json:"environment"`
	Summary            string                 `json:"summary"`
	CommitSHA          string                 `json:"commitSha,omitempty"`
	PRNumber           int                    `json:"prNumber,omitempty"`
	PRURL              string                 `json:"prUrl,omitempty"`
	Repository         string                 `json:"repository,omitempty"`
	Branch             string                 `json:"branch,omitempty"`
	Diff               string                 `json:"diff,omitempty"`
	FilesChanged       []string               `json:"filesChanged,omitempty"`
	ConfigKeys         []string               `json:"configKeys,omitempty"`
	PreviousVersion    string                 `json:"previousVersion,omitempty"`
	NewVersion         string                 `json:"newVersion,omitempty"`
	BlastRadius        *BlastRadiusPrediction `json:"blastRadius,omitempty"`
	IdempotencyKey     string                 `json:"idempotencyKey,omitempty"`
	ChangeSetID        string                 `json:"changeSetId,omitempty"`
	CanonicalURL       string                 `json:"canonicalUrl,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
	Metadata           map[string]string      `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// AllServices returns the primary service followed by additional services.
func (e *ChangeEvent) AllServices() []string {
	out := make([]string, 0, 1+len(e.AdditionalServices))
	if e.Service != "" {
		out = append(out, e.Service)
	}
	out = append(out, e.AdditionalServices...)
	return out
}

// ApplyDefaults fills in server-side defaults for an event about to be stored.
// now is injected so callers (and tests) control the clock.
func (e *ChangeEvent) ApplyDefaults(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Source == "" {
		e.Source = SourceManual
	}
	if e.Initiator == "" {
		e.Initiator = InitiatorUnknown
	}
	if e.Status == "" {
		e.Status = StatusCompleted
	}
	if e.Environment == "" {
		e.Environment = "production"
	}
	if e.AdditionalServices == nil {
		e.AdditionalServices = []string{}
	}
	if e.FilesChanged == nil {
		e.FilesChanged = []string{}
	}
	if e.ConfigKeys == nil {
		e.ConfigKeys = []string{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.CreatedAt = now
	e.UpdatedAt = now
}

// Validate checks the invariants required before an event may be persisted.
func (e *ChangeEvent) Validate() error {
	if e.Service == "" {
		return NewValidationError("event service must not be empty").
			WithHint("set the primary affected service id")
	}
	if e.Summary == "" {
		return NewValidationError("event summary must not be empty").
			WithHint("describe what changed")
	}
	if e.ChangeType == "" {
		return NewValidationError("event changeType must not be empty").
			WithHint("use one of the enumerated change types")
	}
	if !e.ChangeType.Valid() {
		return NewValidationError("unknown changeType %q", string(e.ChangeType))
	}
	if e.Source != "" && !e.Source.Valid() {
		return NewValidationError("unknown source %q", string(e.Source))
	}
	if e.Initiator != "" && !e.Initiator.Valid() {
		return NewValidationError("unknown initiator %q", string(e.Initiator))
	}
	if e.Status != "" && !e.Status.Valid() {
		return NewValidationError("unknown status %q", string(e.Status))
	}
	return nil
}

// Valid reports whether the change type is one of the enumerated kinds.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeTypeDeployment, ChangeTypeConfigChange, ChangeTypeInfraModification,
		ChangeTypeFeatureFlag, ChangeTypeDBMigration, ChangeTypeCodeChange,
		ChangeTypeRollback, ChangeTypeScaling, ChangeTypeSecurityPatch:
		return true
	}
	return false
}

// Valid reports whether the source is one of the enumerated origin systems.
func (s Source) Valid() bool {
	switch s {
	case SourceGitHub, SourceGitLab, SourceAWSCodePipeline, SourceAWSECS,
		SourceAWSLambda, SourceKubernetes, SourceClaudeHook, SourceAgentHook,
		SourceManual, SourceTerraform:
		return true
	}
	return false
}

// Valid reports whether the initiator is one of the enumerated kinds.
func (i Initiator) Valid() bool {
	switch i {
	case InitiatorHuman, InitiatorAgent, InitiatorAutomation, InitiatorUnknown:
		return true
	}
	return false
}

// Valid reports whether the status is one of the enumerated lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusFailed, StatusRolledBack:
		return true
	}
	return false
}

// EventUpdate describes a partial update to a stored event.
// Nil fields mean "leave unchanged".
type EventUpdate struct {
	Status      *Status                `json:"status,omitempty"`
	Summary     *string                `json:"summary,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
	BlastRadius *BlastRadiusPrediction `json:"blastRadius,omitempty"`
}

// Empty reports whether the update contains no recognized field.
func (u *EventUpdate) Empty() bool {
	return u == nil || (u.Status == nil && u.Summary == nil && u.Tags == nil &&
		u.Metadata == nil && u.BlastRadius == nil)
}

// QueryOptions filters an event store query. All filters are optional and
// AND-combined. Services match the primary service or any additional service.
type QueryOptions struct {
	Services    []string     `json:"services,omitempty"`
	ChangeTypes []ChangeType `json:"changeTypes,omitempty"`
	Sources     []Source     `json:"sources,omitempty"`
	Environment string       `json:"environment,omitempty"`
	Since       *time.Time   `json:"since,omitempty"`
	Until       *time.Time   `json:"until,omitempty"`
	Initiator   Initiator    `json:"initiator,omitempty"`
	Status      Status       `json:"status,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// StoreStats summarizes the contents of the event store.
type StoreStats struct {
	Total         int                `json:"total"`
	ByType        map[ChangeType]int `json:"byType"`
	BySource      map[Source]int     `json:"bySource"`
	ByEnvironment map[string]int     `json:"byEnvironment"`
}

// VelocityMetric describes change activity for a service within a window.
type VelocityMetric struct {
	Service                string             `json:"service"`
	WindowMinutes          int                `json:"windowMinutes"`
	WindowStart            time.Time          `json:"windowStart"`
	WindowEnd              time.Time          `json:"windowEnd"`
	ChangeCount            int                `json:"changeCount"`
	ChangeTypes            map[ChangeType]int `json:"changeTypes"`
	AverageIntervalMinutes float64            `json:"averageIntervalMinutes"`
}
