// Package models defines the data shapes shared across conductor's
// components: features, the pipeline session log, architecture blobs,
// and the persisted config map.
package models

import "time"

// Status is a feature's position in the pipeline state machine.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInDev          Status = "in-dev"
	StatusReadyForReview Status = "ready-for-review"
	StatusApproved       Status = "approved"
	StatusNeedsRevision  Status = "needs-revision"
	StatusQATesting      Status = "qa-testing"
	StatusPROpen         Status = "pr-open"
	StatusComplete       Status = "complete"
)

// Terminal reports whether a status is a final, non-actionable state.
func (s Status) Terminal() bool {
	return s == StatusComplete
}

// Valid reports whether s is one of the recognized pipeline statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInDev, StatusReadyForReview, StatusApproved,
		StatusNeedsRevision, StatusQATesting, StatusPROpen, StatusComplete:
		return true
	}
	return false
}

// Feature is the central pipeline entity.
type Feature struct {
	ID                     string    `json:"id" db:"id"`
	Category               string    `json:"category" db:"category"`
	Description            string    `json:"description" db:"description"`
	Notes                  string    `json:"notes" db:"notes"`
	Status                 Status    `json:"status" db:"status"`
	DependsOn              []string  `json:"depends_on" db:"depends_on"`
	Requirements           []string  `json:"requirements" db:"requirements"`
	ArchitectureCompliance []string  `json:"architecture_compliance" db:"architecture_compliance"`
	VerificationSteps      []string  `json:"verification_steps" db:"verification_steps"`
	AssignedTo             string    `json:"assigned_to" db:"assigned_to"`
	ReviewedBy             string    `json:"reviewed_by" db:"reviewed_by"`
	TestedBy               string    `json:"tested_by" db:"tested_by"`
	Passes                 bool      `json:"passes" db:"passes"`
	OpenspecChangeID       string    `json:"openspec_change_id" db:"openspec_change_id"`
	OpenspecTaskGroup      int       `json:"openspec_task_group" db:"openspec_task_group"`
	OpenspecReference      string    `json:"openspec_reference" db:"openspec_reference"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// MutableFields lists the Feature fields that may be patched through
// Feature Model Update calls. Anything not listed (id, created_at,
// updated_at) is immutable. The openspec_* fields and passes are listed
// even though the Spec Importer and QA are their usual writers, since
// the orchestrator does not distinguish callers.
var MutableFields = map[string]struct{}{
	"category":                {},
	"description":             {},
	"notes":                   {},
	"status":                  {},
	"depends_on":              {},
	"requirements":            {},
	"architecture_compliance": {},
	"verification_steps":      {},
	"assigned_to":             {},
	"reviewed_by":             {},
	"tested_by":               {},
	"passes":                  {},
	"openspec_change_id":      {},
	"openspec_task_group":     {},
	"openspec_reference":      {},
}

// PipelineSession is one append-only history entry: an agent role's
// attempt at a feature and its outcome.
type PipelineSession struct {
	SessionNumber int       `json:"session_number" db:"session_number"`
	AgentRole     string    `json:"agent_role" db:"agent_role"`
	FeatureID     string    `json:"feature_id" db:"feature_id"`
	Outcome       string    `json:"outcome" db:"outcome"`
	Notes         string    `json:"notes" db:"notes"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// BlobKind enumerates the recognized architecture blob keys.
type BlobKind string

const (
	BlobPrinciples BlobKind = "principles"
	BlobPatterns   BlobKind = "patterns"
	BlobStandards  BlobKind = "standards"
)

// ArchitectureBlob is an opaque JSON document keyed by kind; the
// orchestrator neither interprets nor validates its payload.
type ArchitectureBlob struct {
	Kind      BlobKind  `json:"kind" db:"kind"`
	Payload   string    `json:"payload" db:"payload"` // raw JSON text
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Recognized config keys (see §3 of the spec).
const (
	ConfigExecutionMode          = "execution_mode"
	ConfigModel                  = "model"
	ConfigMaxRetries             = "max_retries"
	ConfigMaxAgentTurns          = "max_agent_turns"
	ConfigFeaturesPerLeadSession = "features_per_lead_session"
	ConfigAutoMerge              = "auto_merge"
	ConfigSafeMode               = "safe_mode"
	ConfigOpenspecAutoArchive    = "openspec_auto_archive"
	ConfigOpenspecAutoImport     = "openspec_auto_import"
)

// ExecutionMode values for the execution_mode config key.
const (
	ExecutionModeTeam         = "team"
	ExecutionModeOrchestrator = "orchestrator"
)

// DefaultConfig seeds the recognized config keys with their defaults,
// applied by the Store on first Open.
func DefaultConfig() map[string]string {
	return map[string]string{
		ConfigExecutionMode:          ExecutionModeOrchestrator,
		ConfigModel:                  "",
		ConfigMaxRetries:             "3",
		ConfigMaxAgentTurns:          "40",
		ConfigFeaturesPerLeadSession: "1",
		ConfigAutoMerge:              "true",
		ConfigSafeMode:               "false",
		ConfigOpenspecAutoArchive:    "false",
		ConfigOpenspecAutoImport:     "false",
	}
}

// Action is one of the actions the Scheduler can hand back for a
// feature.
type Action string

const (
	ActionDev    Action = "dev"
	ActionReview Action = "review"
	ActionQA     Action = "qa"
	ActionPR     Action = "pr"
	ActionMerge  Action = "merge"
)

// ScheduledAction pairs a feature id with the action the Scheduler
// picked for it.
type ScheduledAction struct {
	FeatureID string `json:"feature_id"`
	Action    Action `json:"action"`
}

// ListFilter narrows Feature listings by status and/or assignee.
type ListFilter struct {
	Status   Status
	Assigned string
}
