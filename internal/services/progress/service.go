// Package progress reports per-section document completion for an audit.
// Completion (a document exists) and compliance (the evaluation accepted
// it) are reported side by side and never merged.
package progress

import (
	"context"
	"fmt"
	"math"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

type Repository interface {
	GetAudit(ctx context.Context, auditID string) (domain.Audit, error)
	ListSections(ctx context.Context) ([]domain.TechnicalSection, error)
	ActiveDocuments(ctx context.Context, auditID string) ([]domain.Document, error)
	ListEvaluations(ctx context.Context, auditID string) ([]domain.Evaluation, error)
}

type Service struct {
	repo Repository
}

var _ ports.Progress = (*Service)(nil)

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetProgress(ctx context.Context, auditID string) (domain.Progress, error) {
	if _, err := s.repo.GetAudit(ctx, auditID); err != nil {
		return domain.Progress{}, err
	}
	sections, err := s.repo.ListSections(ctx)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("list sections: %w", err)
	}
	docs, err := s.repo.ActiveDocuments(ctx, auditID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("active documents: %w", err)
	}
	evals, err := s.repo.ListEvaluations(ctx, auditID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("list evaluations: %w", err)
	}
	return Compute(auditID, sections, docs, evals), nil
}

// Compute builds the progress report from already loaded records. docs must
// be the active documents only. An evaluation counts only while it targets
// the section's active document version.
func Compute(auditID string, sections []domain.TechnicalSection, docs []domain.Document, evals []domain.Evaluation) domain.Progress {
	type active struct {
		count   int
		version int
	}
	bySection := make(map[string]active, len(sections))
	for _, d := range docs {
		a := bySection[d.SectionID]
		a.count++
		if d.Version > a.version {
			a.version = d.Version
		}
		bySection[d.SectionID] = a
	}
	evalBySection := make(map[string]domain.Evaluation, len(evals))
	for _, e := range evals {
		evalBySection[e.SectionID] = e
	}

	p := domain.Progress{AuditID: auditID, PerSection: make([]domain.SectionProgress, 0, len(sections))}
	obligatory, withDocs := 0, 0
	for _, sec := range sections {
		a := bySection[sec.ID]
		sp := domain.SectionProgress{
			SectionID:     sec.ID,
			Name:          sec.Name,
			Obligatory:    sec.Obligatory,
			Status:        domain.SectionMissing,
			DocumentCount: a.count,
			ActiveVersion: a.version,
			Compliance:    domain.CompliancePending,
		}
		if a.count > 0 {
			sp.Status = domain.SectionComplete
		}
		if ev, ok := evalBySection[sec.ID]; ok && a.count > 0 && ev.DocumentVersion == a.version {
			sp.Evaluated = true
			sp.RequiresClarification = ev.RequiresClarification
			if ev.Result.Passing() {
				sp.Compliance = domain.ComplianceCompliant
			} else {
				sp.Compliance = domain.ComplianceNonCompliant
			}
		}
		if sec.Obligatory {
			obligatory++
			if a.count > 0 {
				withDocs++
			}
		}
		p.PerSection = append(p.PerSection, sp)
	}

	p.Percent = percent(withDocs, obligatory)
	switch {
	case withDocs == obligatory:
		p.Status = domain.SectionComplete
	case withDocs == 0:
		p.Status = domain.SectionMissing
	default:
		p.Status = domain.SectionPartial
	}
	return p
}

// percent rounds half away from zero; no obligatory sections means done.
func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
