package domain

import (
	"encoding/json"
	"time"
)

// Core domain models used internally. HTTP payloads live in the http adapter;
// keep these decoupled from wire shapes.

type Audit struct {
	ID             string
	SiteID         string
	ProviderID     string
	AuditorID      *string // at most one active assignment
	PeriodCode     string
	State          State
	UploadStartsAt *time.Time
	UploadDeadline *time.Time
	VisitDate      *time.Time
	StateChangedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AssignedTo reports whether userID is the audit's active auditor.
func (a Audit) AssignedTo(userID string) bool {
	return a.AuditorID != nil && *a.AuditorID == userID
}

type TechnicalSection struct {
	ID             string
	Name           string
	SectionType    string // threshold configuration key, e.g. "hardware_software"
	Order          int
	Obligatory     bool
	AllowedFormats []string
}

type AnalysisState string

const (
	AnalysisPending    AnalysisState = "pending"
	AnalysisProcessing AnalysisState = "processing"
	AnalysisCompleted  AnalysisState = "completed"
	AnalysisError      AnalysisState = "error"
)

type Document struct {
	ID            string
	AuditID       string
	SectionID     string
	UploadedBy    string
	Filename      string
	ContentHash   string
	SizeBytes     int64
	StoragePath   string
	Version       int
	Superseded    bool
	AnalysisState AnalysisState
	UploadedAt    time.Time
}

type EvaluationResult string

const (
	ResultCompliant             EvaluationResult = "compliant"
	ResultNonCompliant          EvaluationResult = "non_compliant"
	ResultCompliantObservations EvaluationResult = "compliant_with_observations"
	ResultNotApplicable         EvaluationResult = "not_applicable"
)

func (r EvaluationResult) Valid() bool {
	switch r {
	case ResultCompliant, ResultNonCompliant, ResultCompliantObservations, ResultNotApplicable:
		return true
	}
	return false
}

// Passing treats observations and not-applicable verdicts as compliant.
func (r EvaluationResult) Passing() bool {
	return r == ResultCompliant || r == ResultCompliantObservations || r == ResultNotApplicable
}

type Criterion struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Note   string `json:"note,omitempty"`
}

type Evaluation struct {
	ID                    string
	AuditID               string
	SectionID             string
	AuditorID             string
	Result                EvaluationResult
	Score                 float64
	Observations          string
	Criteria              []Criterion
	RequiresClarification bool
	DocumentVersion       int
	EvaluatedAt           time.Time
}

// ThresholdConfiguration is the active rule blob for a (scope, section type)
// pair. AuditID nil means global scope.
type ThresholdConfiguration struct {
	ID          string
	AuditID     *string
	SectionType string
	Rules       json.RawMessage
	Locked      bool
	Version     int
	UpdatedBy   string
	UpdatedAt   time.Time
}

type ThresholdHistoryEntry struct {
	ID        string
	ConfigID  string
	Version   int
	Snapshot  json.RawMessage
	Diff      []FieldChange
	Author    string
	Action    string // update|lock|unlock
	CreatedAt time.Time
}

type FieldChange struct {
	Path   string          `json:"path"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
}

// StateChange is one row of an audit's state history.
type StateChange struct {
	ID            string
	AuditID       string
	From          State
	To            State
	Kind          CauseKind
	ActorID       string
	ActorName     string
	Justification string
	Conditions    []string
	At            time.Time
}

// TrailEntry is one bitácora record handed to the audit-trail sink.
type TrailEntry struct {
	ActorID    string
	ActorName  string
	Action     string
	EntityType string
	EntityID   string
	Before     map[string]any
	After      map[string]any
	At         time.Time
}
