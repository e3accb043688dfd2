package ports

import (
	"context"
	"time"

	"satdigital/internal/domain"
)

// AuditRepository stores audits and their state history. State changes go
// through CompareAndSwapState only.
type AuditRepository interface {
	CreateAudit(ctx context.Context, a domain.Audit) (domain.Audit, error)
	GetAudit(ctx context.Context, auditID string) (domain.Audit, error)
	// CreateAudits inserts, in one transaction, the audits whose (site,
	// period) pair is still free and returns only those it inserted.
	CreateAudits(ctx context.Context, audits []domain.Audit) ([]domain.Audit, error)
	ListAuditsByPeriod(ctx context.Context, periodCode string) ([]domain.Audit, error)
	// SetAuditor replaces the active auditor; nil clears the assignment.
	SetAuditor(ctx context.Context, auditID string, auditorID *string, at time.Time) (domain.Audit, error)
	ListAuditIDsByState(ctx context.Context, states []domain.State) ([]string, error)
	// CompareAndSwapState moves the audit from→to only if its stored state is
	// still from, appending change to the state history in the same write.
	// applied=false with a nil error means another writer got there first.
	CompareAndSwapState(ctx context.Context, auditID string, from, to domain.State, change domain.StateChange) (applied bool, err error)
	StateHistory(ctx context.Context, auditID string) ([]domain.StateChange, error)
}

// SectionRepository provides the technical section reference data.
type SectionRepository interface {
	UpsertSection(ctx context.Context, s domain.TechnicalSection) error
	ListSections(ctx context.Context) ([]domain.TechnicalSection, error)
}

// DocumentRepository manages versioned uploads per (audit, section).
type DocumentRepository interface {
	ActiveDocuments(ctx context.Context, auditID string) ([]domain.Document, error)
	FindDocumentByHash(ctx context.Context, auditID, sectionID, hash string) (doc domain.Document, found bool, err error)
	// SaveDocumentVersion supersedes the active document of the pair and
	// inserts doc as the next version.
	SaveDocumentVersion(ctx context.Context, doc domain.Document) (domain.Document, error)
}

// EvaluationRepository keeps one evaluation per (audit, section).
type EvaluationRepository interface {
	ListEvaluations(ctx context.Context, auditID string) ([]domain.Evaluation, error)
	UpsertEvaluation(ctx context.Context, ev domain.Evaluation) (domain.Evaluation, error)
}

// ThresholdRepository stores the active configuration per (scope, section
// type) and its append-only history.
type ThresholdRepository interface {
	GetThresholdConfig(ctx context.Context, auditID *string, sectionType string) (cfg domain.ThresholdConfiguration, found bool, err error)
	// UpdateThresholdConfig serializes writers of one scope. It hands the
	// stored configuration to change and writes the result together with its
	// history entry in the same transaction.
	UpdateThresholdConfig(ctx context.Context, auditID *string, sectionType string, change ThresholdChange) (domain.ThresholdConfiguration, error)
	ThresholdHistory(ctx context.Context, configID string) ([]domain.ThresholdHistoryEntry, error)
}

// ThresholdChange derives the next configuration and its history entry from
// the stored one; found is false when the scope has none yet. An error aborts
// the write and is returned unchanged.
type ThresholdChange func(cur domain.ThresholdConfiguration, found bool) (domain.ThresholdConfiguration, domain.ThresholdHistoryEntry, error)

// Store is the full persistence surface; both adapters implement it.
type Store interface {
	AuditRepository
	SectionRepository
	DocumentRepository
	EvaluationRepository
	ThresholdRepository
	AuditTrailSink
	Close()
}
