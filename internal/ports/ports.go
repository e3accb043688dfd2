package ports

import (
	"context"
	"time"

	"satdigital/internal/domain"
)

// Workflow drives audit state transitions.
type Workflow interface {
	VerifyTransitions(ctx context.Context, auditID string) (domain.VerifyResult, error)
	Transition(ctx context.Context, auditID string, target string, actor domain.Actor, justification string) (domain.TransitionResult, error)
	ForceTransition(ctx context.Context, auditID string, target string, actor domain.Actor, justification string) (domain.TransitionResult, error)
	StateHistory(ctx context.Context, auditID string) ([]domain.StateChange, error)
	RunScheduledSweep(ctx context.Context) (domain.SweepResult, error)
}

// Progress reports document completion per section.
type Progress interface {
	GetProgress(ctx context.Context, auditID string) (domain.Progress, error)
}

// RuleScope selects which threshold configuration applies.
type RuleScope struct {
	AuditID     *string
	SectionType string
}

// Inventory validates inventory rows against the rule set in scope.
type Inventory interface {
	ValidateRow(ctx context.Context, row map[string]string, scope RuleScope) (domain.InventoryResult, []domain.ParseWarning, error)
	ValidateBatch(ctx context.Context, rows []map[string]string, scope RuleScope) (domain.InventoryBatchResult, error)
}

// Thresholds manages threshold configurations.
type Thresholds interface {
	Get(ctx context.Context, scope RuleScope) (domain.ThresholdConfiguration, error)
	Update(ctx context.Context, scope RuleScope, rules []byte, actor domain.Actor) (domain.ThresholdConfiguration, error)
	SetLocked(ctx context.Context, scope RuleScope, locked bool, actor domain.Actor) (domain.ThresholdConfiguration, error)
	History(ctx context.Context, scope RuleScope) ([]domain.ThresholdHistoryEntry, error)
}

// Documents records uploads and evaluations and lets the workflow react.
type Documents interface {
	RegisterDocument(ctx context.Context, doc domain.Document, actor domain.Actor) (domain.Document, error)
	RecordEvaluation(ctx context.Context, ev domain.Evaluation, actor domain.Actor) (domain.Evaluation, error)
}

// Reports renders audit status documents.
type Reports interface {
	AuditReportPDF(ctx context.Context, auditID string) ([]byte, error)
}

// PeriodSite is one active site to audit in a period.
type PeriodSite struct {
	SiteID     string
	ProviderID string
	AuditorID  string
}

// AuditPeriod describes the window shared by every audit of a period.
type AuditPeriod struct {
	Code           string
	UploadStartsAt *time.Time
	UploadDeadline *time.Time
	VisitDate      *time.Time
	Sites          []PeriodSite
}

type GenerateResult struct {
	Created []domain.Audit
	// Skipped lists sites that already had an audit for the period.
	Skipped []string
}

// Planning opens periods and staffs their audits.
type Planning interface {
	GenerateAudits(ctx context.Context, p AuditPeriod, actor domain.Actor) (GenerateResult, error)
	AssignAuditor(ctx context.Context, auditID, auditorID string, actor domain.Actor) (domain.Audit, error)
	GetAudit(ctx context.Context, auditID string, actor domain.Actor) (domain.Audit, error)
	ListPeriod(ctx context.Context, periodCode string, actor domain.Actor) ([]domain.Audit, error)
}
