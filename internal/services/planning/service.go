// Package planning opens audit periods and staffs them: it generates one
// audit per active site and keeps a single active auditor per audit.
package planning

import (
	"context"
	"fmt"
	"log"
	"strings"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

const EventAuditorAssigned = "audit.auditor_assigned"

var _ ports.Planning = (*Service)(nil)

type Service struct {
	audits ports.AuditRepository
	notify ports.NotificationSink
	trail  ports.AuditTrailSink
	clock  ports.Clock
	logger *log.Logger
}

func New(audits ports.AuditRepository, notify ports.NotificationSink, trail ports.AuditTrailSink, clock ports.Clock, logger *log.Logger) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{audits: audits, notify: notify, trail: trail, clock: clock, logger: logger}
}

func validate(p ports.AuditPeriod) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: period code is required", domain.ErrValidation)
	}
	if len(p.Sites) == 0 {
		return fmt.Errorf("%w: period %s has no sites", domain.ErrValidation, p.Code)
	}
	if p.UploadStartsAt != nil && p.UploadDeadline != nil && !p.UploadDeadline.After(*p.UploadStartsAt) {
		return fmt.Errorf("%w: upload deadline must be after the upload window opens", domain.ErrValidation)
	}
	if p.UploadDeadline != nil && p.VisitDate != nil && p.VisitDate.Before(*p.UploadDeadline) {
		return fmt.Errorf("%w: visit date must not precede the upload deadline", domain.ErrValidation)
	}
	seen := make(map[string]bool, len(p.Sites))
	for _, s := range p.Sites {
		id := strings.TrimSpace(s.SiteID)
		if id == "" {
			return fmt.Errorf("%w: site id is required", domain.ErrValidation)
		}
		if seen[id] {
			return fmt.Errorf("%w: site %s listed twice", domain.ErrValidation, id)
		}
		seen[id] = true
	}
	return nil
}

// GenerateAudits creates a scheduled audit for every site of the period that
// does not have one yet. Running it again for the same period only fills the
// gaps.
func (s *Service) GenerateAudits(ctx context.Context, p ports.AuditPeriod, actor domain.Actor) (ports.GenerateResult, error) {
	if err := actor.Require(domain.PermGenerateAudits); err != nil {
		return ports.GenerateResult{}, err
	}
	if err := validate(p); err != nil {
		return ports.GenerateResult{}, err
	}
	now := s.clock.Now()
	batch := make([]domain.Audit, 0, len(p.Sites))
	for _, site := range p.Sites {
		a := domain.Audit{
			SiteID:         strings.TrimSpace(site.SiteID),
			ProviderID:     site.ProviderID,
			PeriodCode:     p.Code,
			State:          domain.StateScheduled,
			UploadStartsAt: p.UploadStartsAt,
			UploadDeadline: p.UploadDeadline,
			VisitDate:      p.VisitDate,
			CreatedAt:      now,
		}
		if site.AuditorID != "" {
			auditor := site.AuditorID
			a.AuditorID = &auditor
		}
		batch = append(batch, a)
	}
	created, err := s.audits.CreateAudits(ctx, batch)
	if err != nil {
		return ports.GenerateResult{}, fmt.Errorf("generate audits for %s: %w", p.Code, err)
	}

	res := ports.GenerateResult{Created: created, Skipped: []string{}}
	fresh := make(map[string]bool, len(created))
	for _, a := range created {
		fresh[a.SiteID] = true
		s.record(ctx, actor, "audit.generated", a.ID, nil, map[string]any{
			"site_id": a.SiteID, "period_code": a.PeriodCode, "state": string(a.State),
		})
		if a.AuditorID != nil {
			s.notifyAssignment(ctx, a)
		}
	}
	for _, a := range batch {
		if !fresh[a.SiteID] {
			res.Skipped = append(res.Skipped, a.SiteID)
		}
	}
	s.logger.Printf("planning: period %s: %d audits created, %d skipped", p.Code, len(res.Created), len(res.Skipped))
	return res, nil
}

// AssignAuditor makes auditorID the audit's only active auditor, replacing
// any previous one. An empty auditorID clears the assignment.
func (s *Service) AssignAuditor(ctx context.Context, auditID, auditorID string, actor domain.Actor) (domain.Audit, error) {
	if err := actor.Require(domain.PermAssignAuditor); err != nil {
		return domain.Audit{}, err
	}
	a, err := s.audits.GetAudit(ctx, auditID)
	if err != nil {
		return domain.Audit{}, err
	}
	if a.State.Terminal() {
		return domain.Audit{}, fmt.Errorf("audit %s is %s: %w", a.ID, a.State, domain.ErrValidation)
	}
	var next *string
	if id := strings.TrimSpace(auditorID); id != "" {
		next = &id
	}
	if sameAuditor(a.AuditorID, next) {
		return a, nil
	}
	updated, err := s.audits.SetAuditor(ctx, auditID, next, s.clock.Now())
	if err != nil {
		return domain.Audit{}, err
	}
	s.record(ctx, actor, "audit.auditor_assigned", a.ID,
		map[string]any{"auditor_id": deref(a.AuditorID)},
		map[string]any{"auditor_id": deref(updated.AuditorID)})
	if updated.AuditorID != nil {
		s.notifyAssignment(ctx, updated)
	}
	return updated, nil
}

func (s *Service) GetAudit(ctx context.Context, auditID string, actor domain.Actor) (domain.Audit, error) {
	if err := actor.Require(domain.PermViewAudit); err != nil {
		return domain.Audit{}, err
	}
	return s.audits.GetAudit(ctx, auditID)
}

// ListPeriod returns the period's audits ordered by site.
func (s *Service) ListPeriod(ctx context.Context, periodCode string, actor domain.Actor) ([]domain.Audit, error) {
	if err := actor.Require(domain.PermViewAudit); err != nil {
		return nil, err
	}
	return s.audits.ListAuditsByPeriod(ctx, periodCode)
}

func (s *Service) record(ctx context.Context, actor domain.Actor, action, auditID string, before, after map[string]any) {
	if s.trail == nil {
		return
	}
	err := s.trail.RecordTrail(ctx, domain.TrailEntry{
		ActorID: actor.ID, ActorName: actor.DisplayName(), Action: action,
		EntityType: "audit", EntityID: auditID, Before: before, After: after, At: s.clock.Now(),
	})
	if err != nil {
		s.logger.Printf("planning: trail %s for %s: %v", action, auditID, err)
	}
}

func (s *Service) notifyAssignment(ctx context.Context, a domain.Audit) {
	if s.notify == nil {
		return
	}
	recipients := []string{*a.AuditorID}
	if a.ProviderID != "" {
		recipients = append(recipients, a.ProviderID)
	}
	err := s.notify.Notify(ctx, ports.Notification{
		AuditID: a.ID, EventType: EventAuditorAssigned, Recipients: recipients,
		Payload: map[string]any{"auditor_id": *a.AuditorID, "site_id": a.SiteID, "period_code": a.PeriodCode},
		At:      s.clock.Now(),
	})
	if err != nil {
		s.logger.Printf("planning: notify assignment for %s: %v", a.ID, err)
	}
}

func sameAuditor(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
