// Package workflow owns the audit lifecycle: automatic verification,
// role-gated manual transitions, forced overrides and the scheduled sweep.
// Every state write is a compare-and-swap on the stored state; a lost swap
// means another writer already moved the audit.
package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"satdigital/internal/domain"
	"satdigital/internal/metrics"
	"satdigital/internal/ports"
)

// UploadPolicy decides when an uploading audit moves to pending_evaluation.
// The zero value is deadline-driven: the deadline alone triggers the move.
type UploadPolicy struct {
	// RequireCompletion also demands every obligatory section be documented.
	RequireCompletion bool
	// FastTrack moves the audit as soon as every obligatory section is
	// documented, even before the deadline.
	FastTrack bool
}

type Engine struct {
	audits   ports.AuditRepository
	progress ports.Progress
	notify   ports.NotificationSink
	trail    ports.AuditTrailSink

	clock   ports.Clock
	upload  UploadPolicy
	grace   time.Duration
	metrics *metrics.Metrics
	logger  *log.Logger

	sweepWorkers int
}

var _ ports.Workflow = (*Engine)(nil)

type Option func(*Engine)

func WithClock(c ports.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithUploadPolicy(p UploadPolicy) Option { return func(e *Engine) { e.upload = p } }

// WithGracePeriod enables automatic closing of evaluated audits once d has
// passed since they entered evaluated with no clarification pending. Zero
// keeps closing manual.
func WithGracePeriod(d time.Duration) Option { return func(e *Engine) { e.grace = d } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithSweepWorkers sets how many audits a sweep verifies concurrently.
func WithSweepWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sweepWorkers = n
		}
	}
}

func New(audits ports.AuditRepository, progress ports.Progress, notify ports.NotificationSink, trail ports.AuditTrailSink, opts ...Option) *Engine {
	e := &Engine{
		audits:   audits,
		progress: progress,
		notify:   notify,
		trail:    trail,
		clock:    ports.SystemClock{},
		logger:   log.Default(),

		sweepWorkers: 4,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// maxSteps bounds one verification cascade; the lifecycle has fewer edges.
const maxSteps = 8

// VerifyTransitions applies every automatic transition whose conditions
// hold, one edge at a time, until none does. Unmet conditions are a normal
// negative result. Losing a swap to a concurrent writer stops the cascade
// with Superseded set and no error.
func (e *Engine) VerifyTransitions(ctx context.Context, auditID string) (domain.VerifyResult, error) {
	a, err := e.audits.GetAudit(ctx, auditID)
	if err != nil {
		return domain.VerifyResult{}, err
	}
	res := domain.VerifyResult{From: a.State}
	for i := 0; i < maxSteps && !a.State.Terminal(); i++ {
		now := e.clock.Now()
		to, conditions, ok, err := e.nextAutomatic(ctx, a, now)
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
		change := domain.NewStateChange(a.ID, a.State, to, domain.Automatic{ConditionsChecked: conditions})
		change.At = now
		applied, err := e.audits.CompareAndSwapState(ctx, a.ID, a.State, to, change)
		if err != nil {
			return res, fmt.Errorf("apply %s -> %s: %w", a.State, to, err)
		}
		if !applied {
			e.metrics.Conflict()
			res.Superseded = true
			break
		}
		e.emit(ctx, a, change)
		res.Applied = true
		res.Steps = append(res.Steps, change)
		reached := to
		res.To = &reached
		a.State, a.StateChangedAt = to, now
	}
	return res, nil
}

// nextAutomatic returns the automatic edge out of a.State whose conditions
// hold at now, with the names of the conditions that held.
func (e *Engine) nextAutomatic(ctx context.Context, a domain.Audit, now time.Time) (domain.State, []string, bool, error) {
	switch a.State {
	case domain.StateScheduled:
		if a.UploadStartsAt != nil && !now.Before(*a.UploadStartsAt) {
			return domain.StateUploading, []string{"upload_window_open"}, true, nil
		}
		p, err := e.progress.GetProgress(ctx, a.ID)
		if err != nil {
			return "", nil, false, err
		}
		for _, s := range p.PerSection {
			if s.DocumentCount > 0 {
				return domain.StateUploading, []string{"first_document"}, true, nil
			}
		}

	case domain.StateUploading:
		deadline := a.UploadDeadline != nil && !now.Before(*a.UploadDeadline)
		if !deadline && !e.upload.FastTrack {
			return "", nil, false, nil
		}
		if !e.upload.RequireCompletion && !e.upload.FastTrack {
			return domain.StatePendingEvaluation, []string{"upload_deadline_reached"}, true, nil
		}
		p, err := e.progress.GetProgress(ctx, a.ID)
		if err != nil {
			return "", nil, false, err
		}
		complete := p.ObligatoryComplete()
		switch {
		case e.upload.FastTrack && complete:
			conditions := []string{"obligatory_sections_complete"}
			if deadline {
				conditions = append(conditions, "upload_deadline_reached")
			}
			return domain.StatePendingEvaluation, conditions, true, nil
		case deadline && !e.upload.RequireCompletion:
			return domain.StatePendingEvaluation, []string{"upload_deadline_reached"}, true, nil
		case deadline && complete:
			return domain.StatePendingEvaluation, []string{"upload_deadline_reached", "obligatory_sections_complete"}, true, nil
		}

	case domain.StateUnderReview:
		p, err := e.progress.GetProgress(ctx, a.ID)
		if err != nil {
			return "", nil, false, err
		}
		if p.ObligatoryEvaluated() {
			return domain.StateEvaluated, []string{"obligatory_sections_evaluated"}, true, nil
		}

	case domain.StateEvaluated:
		if e.grace <= 0 || now.Before(a.StateChangedAt.Add(e.grace)) {
			return "", nil, false, nil
		}
		p, err := e.progress.GetProgress(ctx, a.ID)
		if err != nil {
			return "", nil, false, err
		}
		if !p.ClarificationPending() {
			return domain.StateClosed, []string{"grace_period_elapsed", "no_clarification_pending"}, true, nil
		}
	}
	return "", nil, false, nil
}

// manualRule gates one manual edge by target state.
type manualRule struct {
	perm          domain.Permission
	assignedOnly  bool // plain auditors must be the audit's assigned auditor
	justification bool
}

var manualRules = map[domain.State]manualRule{
	domain.StateUnderReview: {perm: domain.PermStartReview, assignedOnly: true},
	domain.StateRejected:    {perm: domain.PermRejectAudit, assignedOnly: true, justification: true},
	domain.StateClosed:      {perm: domain.PermCloseAudit},
	domain.StateCancelled:   {perm: domain.PermCancelAudit, justification: true},
}

// Transition applies a manual edge. The target must be reachable from the
// current state and be one of the manual targets; the other edges are
// driven by VerifyTransitions.
func (e *Engine) Transition(ctx context.Context, auditID, target string, actor domain.Actor, justification string) (domain.TransitionResult, error) {
	to, err := domain.ParseState(target)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	a, err := e.audits.GetAudit(ctx, auditID)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	rule, manual := manualRules[to]
	if !manual || !domain.CanTransition(a.State, to) {
		return domain.TransitionResult{}, &domain.TransitionNotAllowedError{From: a.State, To: to}
	}
	if err := actor.Require(rule.perm); err != nil {
		return domain.TransitionResult{}, err
	}
	if rule.assignedOnly && actor.Role == domain.RoleAuditor && !a.AssignedTo(actor.ID) {
		return domain.TransitionResult{}, &domain.ForbiddenError{ActorID: actor.ID, Role: actor.Role, Permission: rule.perm}
	}
	if rule.justification && justification == "" {
		return domain.TransitionResult{}, domain.ErrJustificationRequired
	}
	return e.apply(ctx, a, to, domain.Manual{Actor: actor, Justification: justification})
}

// ForceTransition moves the audit to any valid state without checking the
// edge set or preconditions. Only roles holding the force permission may
// call it. Forcing the current state is a no-op.
func (e *Engine) ForceTransition(ctx context.Context, auditID, target string, actor domain.Actor, justification string) (domain.TransitionResult, error) {
	if err := actor.Require(domain.PermForceTransition); err != nil {
		return domain.TransitionResult{}, err
	}
	to, err := domain.ParseState(target)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	if justification == "" {
		return domain.TransitionResult{}, domain.ErrJustificationRequired
	}
	a, err := e.audits.GetAudit(ctx, auditID)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	if a.State == to {
		return domain.TransitionResult{Applied: false, NewState: a.State}, nil
	}
	return e.apply(ctx, a, to, domain.Forced{Actor: actor, Justification: justification})
}

// apply writes one caller-requested transition. A lost swap is reported as
// ErrStaleState so the caller can re-read and retry.
func (e *Engine) apply(ctx context.Context, a domain.Audit, to domain.State, cause domain.Cause) (domain.TransitionResult, error) {
	change := domain.NewStateChange(a.ID, a.State, to, cause)
	change.At = e.clock.Now()
	applied, err := e.audits.CompareAndSwapState(ctx, a.ID, a.State, to, change)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("apply %s -> %s: %w", a.State, to, err)
	}
	if !applied {
		e.metrics.Conflict()
		return domain.TransitionResult{}, fmt.Errorf("audit %s: %w", a.ID, domain.ErrStaleState)
	}
	e.emit(ctx, a, change)
	return domain.TransitionResult{Applied: true, NewState: to}, nil
}

func (e *Engine) StateHistory(ctx context.Context, auditID string) ([]domain.StateChange, error) {
	if _, err := e.audits.GetAudit(ctx, auditID); err != nil {
		return nil, err
	}
	return e.audits.StateHistory(ctx, auditID)
}

// RunScheduledSweep verifies every non-terminal audit on a small worker
// pool. A failure on one audit is counted and logged; the sweep goes on.
// Cancelling ctx stops dispatching and returns the partial counts.
func (e *Engine) RunScheduledSweep(ctx context.Context) (domain.SweepResult, error) {
	start := time.Now()
	ids, err := e.audits.ListAuditIDsByState(ctx, domain.NonTerminalStates())
	if err != nil {
		e.metrics.Sweep(0, 0, 0, time.Since(start), err)
		return domain.SweepResult{}, fmt.Errorf("list audits: %w", err)
	}

	var (
		mu  sync.Mutex
		res domain.SweepResult
		wg  sync.WaitGroup
	)
	idCh := make(chan string, e.sweepWorkers)
	for i := 0; i < e.sweepWorkers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for id := range idCh {
				v, err := e.VerifyTransitions(ctx, id)
				mu.Lock()
				res.Checked++
				switch {
				case err != nil:
					res.Failed++
					e.logger.Printf("sweep worker %d: audit %s: %v", idx, id, err)
				case v.Applied:
					res.Transitioned++
				}
				mu.Unlock()
			}
		}(i)
	}

	var cancelled error
dispatch:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case idCh <- id:
		}
	}
	close(idCh)
	wg.Wait()

	e.metrics.Sweep(res.Checked, res.Transitioned, res.Failed, time.Since(start), cancelled)
	return res, cancelled
}
