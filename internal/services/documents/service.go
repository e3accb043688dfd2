// Package documents registers uploads and evaluations. Each write is
// followed by an automatic verification so the first upload or the last
// evaluation moves the audit without waiting for the sweep.
package documents

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

type Repository interface {
	GetAudit(ctx context.Context, auditID string) (domain.Audit, error)
	ListSections(ctx context.Context) ([]domain.TechnicalSection, error)
	ActiveDocuments(ctx context.Context, auditID string) ([]domain.Document, error)
	FindDocumentByHash(ctx context.Context, auditID, sectionID, hash string) (domain.Document, bool, error)
	SaveDocumentVersion(ctx context.Context, doc domain.Document) (domain.Document, error)
	UpsertEvaluation(ctx context.Context, ev domain.Evaluation) (domain.Evaluation, error)
}

type Service struct {
	repo     Repository
	workflow ports.Workflow
	trail    ports.AuditTrailSink
	clock    ports.Clock
	logger   *log.Logger
}

var _ ports.Documents = (*Service)(nil)

func New(repo Repository, workflow ports.Workflow, trail ports.AuditTrailSink, clock ports.Clock, logger *log.Logger) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{repo: repo, workflow: workflow, trail: trail, clock: clock, logger: logger}
}

// RegisterDocument stores doc as the next version of its (audit, section)
// pair. Re-uploading the active version's content returns it unchanged;
// re-uploading a superseded version's content is a version conflict.
func (s *Service) RegisterDocument(ctx context.Context, doc domain.Document, actor domain.Actor) (domain.Document, error) {
	if err := actor.Require(domain.PermUploadDocument); err != nil {
		return domain.Document{}, err
	}
	if doc.SectionID == "" || doc.ContentHash == "" || doc.Filename == "" {
		return domain.Document{}, fmt.Errorf("section_id, filename and content_hash are required: %w", domain.ErrValidation)
	}
	a, err := s.repo.GetAudit(ctx, doc.AuditID)
	if err != nil {
		return domain.Document{}, err
	}
	if a.State.Terminal() {
		return domain.Document{}, fmt.Errorf("audit %s is %s: %w", a.ID, a.State, domain.ErrValidation)
	}
	sec, err := s.section(ctx, doc.SectionID)
	if err != nil {
		return domain.Document{}, err
	}
	if !formatAllowed(sec.AllowedFormats, doc.Filename) {
		return domain.Document{}, fmt.Errorf("%s: format not accepted for section %s (accepted: %s): %w",
			doc.Filename, sec.ID, strings.Join(sec.AllowedFormats, ", "), domain.ErrValidation)
	}

	existing, found, err := s.repo.FindDocumentByHash(ctx, doc.AuditID, doc.SectionID, doc.ContentHash)
	if err != nil {
		return domain.Document{}, err
	}
	if found && existing.Superseded {
		return domain.Document{}, fmt.Errorf("%s repeats superseded version %d of section %s: %w",
			doc.Filename, existing.Version, doc.SectionID, domain.ErrDocumentVersionMismatch)
	}
	if found {
		return existing, nil
	}

	doc.UploadedBy = actor.ID
	doc.UploadedAt = s.clock.Now()
	doc.AnalysisState = domain.AnalysisPending
	saved, err := s.repo.SaveDocumentVersion(ctx, doc)
	if err != nil {
		return domain.Document{}, err
	}
	s.record(ctx, actor, "document.registered", "document", saved.ID, nil, map[string]any{
		"audit_id": saved.AuditID, "section_id": saved.SectionID,
		"filename": saved.Filename, "version": saved.Version,
	})
	s.verify(ctx, saved.AuditID)
	return saved, nil
}

// RecordEvaluation upserts the evaluation of a section. A zero
// DocumentVersion means the active version; any other value must match it.
func (s *Service) RecordEvaluation(ctx context.Context, ev domain.Evaluation, actor domain.Actor) (domain.Evaluation, error) {
	if err := actor.Require(domain.PermEvaluate); err != nil {
		return domain.Evaluation{}, err
	}
	if !ev.Result.Valid() {
		return domain.Evaluation{}, fmt.Errorf("evaluation result %q: %w", ev.Result, domain.ErrValidation)
	}
	a, err := s.repo.GetAudit(ctx, ev.AuditID)
	if err != nil {
		return domain.Evaluation{}, err
	}
	if a.State.Terminal() {
		return domain.Evaluation{}, fmt.Errorf("audit %s is %s: %w", a.ID, a.State, domain.ErrValidation)
	}
	if actor.Role == domain.RoleAuditor && !a.AssignedTo(actor.ID) {
		return domain.Evaluation{}, &domain.ForbiddenError{ActorID: actor.ID, Role: actor.Role, Permission: domain.PermEvaluate}
	}
	if _, err := s.section(ctx, ev.SectionID); err != nil {
		return domain.Evaluation{}, err
	}

	docs, err := s.repo.ActiveDocuments(ctx, ev.AuditID)
	if err != nil {
		return domain.Evaluation{}, err
	}
	active := 0
	for _, d := range docs {
		if d.SectionID == ev.SectionID && d.Version > active {
			active = d.Version
		}
	}
	if active == 0 {
		return domain.Evaluation{}, fmt.Errorf("section %s has no document: %w", ev.SectionID, domain.ErrDocumentVersionMismatch)
	}
	if ev.DocumentVersion == 0 {
		ev.DocumentVersion = active
	}
	if ev.DocumentVersion != active {
		return domain.Evaluation{}, fmt.Errorf("version %d, active %d: %w", ev.DocumentVersion, active, domain.ErrDocumentVersionMismatch)
	}

	ev.AuditorID = actor.ID
	ev.EvaluatedAt = s.clock.Now()
	saved, err := s.repo.UpsertEvaluation(ctx, ev)
	if err != nil {
		return domain.Evaluation{}, err
	}
	s.record(ctx, actor, "evaluation.recorded", "evaluation", saved.ID, nil, map[string]any{
		"audit_id": saved.AuditID, "section_id": saved.SectionID, "result": string(saved.Result),
		"document_version": saved.DocumentVersion, "requires_clarification": saved.RequiresClarification,
	})
	s.verify(ctx, saved.AuditID)
	return saved, nil
}

func (s *Service) section(ctx context.Context, id string) (domain.TechnicalSection, error) {
	sections, err := s.repo.ListSections(ctx)
	if err != nil {
		return domain.TechnicalSection{}, err
	}
	for _, sec := range sections {
		if sec.ID == id {
			return sec, nil
		}
	}
	return domain.TechnicalSection{}, fmt.Errorf("section %s: %w", id, domain.ErrNotFound)
}

// verify runs after a committed write; its failure does not undo the write.
func (s *Service) verify(ctx context.Context, auditID string) {
	if s.workflow == nil {
		return
	}
	if _, err := s.workflow.VerifyTransitions(ctx, auditID); err != nil {
		s.logger.Printf("audit %s: verify after write: %v", auditID, err)
	}
}

func (s *Service) record(ctx context.Context, actor domain.Actor, action, entityType, entityID string, before, after map[string]any) {
	if s.trail == nil {
		return
	}
	err := s.trail.RecordTrail(ctx, domain.TrailEntry{
		ActorID: actor.ID, ActorName: actor.DisplayName(), Action: action,
		EntityType: entityType, EntityID: entityID, Before: before, After: after, At: s.clock.Now(),
	})
	if err != nil {
		s.logger.Printf("%s %s: trail: %v", entityType, entityID, err)
	}
}

// formatAllowed matches the file extension against the section's formats;
// an empty list accepts anything.
func formatAllowed(formats []string, filename string) bool {
	if len(formats) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, f := range formats {
		if strings.EqualFold(strings.TrimPrefix(f, "."), ext) {
			return true
		}
	}
	return false
}
