// Package thresholds manages threshold configurations: scoped resolution,
// the lock flag and the append-only change history.
package thresholds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
	"satdigital/internal/services/rules"
)

const (
	ActionUpdate = "update"
	ActionLock   = "lock"
	ActionUnlock = "unlock"

	entityThresholds = "threshold_configuration"
)

// DefaultSectionType is the section whose thresholds apply to inventory rows
// when the caller does not name one.
const DefaultSectionType = "hardware_software"

type Service struct {
	repo     ports.ThresholdRepository
	trail    ports.AuditTrailSink
	defaults rules.RuleSet
	clock    ports.Clock
	logger   *log.Logger
}

// New wires the service. defaults is served when neither an audit-scoped nor
// a global configuration exists.
func New(repo ports.ThresholdRepository, trail ports.AuditTrailSink, defaults rules.RuleSet, clock ports.Clock, logger *log.Logger) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{repo: repo, trail: trail, defaults: defaults, clock: clock, logger: logger}
}

func checkScope(scope ports.RuleScope) error {
	if strings.TrimSpace(scope.SectionType) == "" {
		return fmt.Errorf("%w: section type is required", domain.ErrValidation)
	}
	return nil
}

// Get resolves the configuration in force: audit-scoped, then global, then
// the built-in rules (returned with Version 0 and no ID).
func (s *Service) Get(ctx context.Context, scope ports.RuleScope) (domain.ThresholdConfiguration, error) {
	if err := checkScope(scope); err != nil {
		return domain.ThresholdConfiguration{}, err
	}
	if scope.AuditID != nil {
		cfg, found, err := s.repo.GetThresholdConfig(ctx, scope.AuditID, scope.SectionType)
		if err != nil {
			return domain.ThresholdConfiguration{}, err
		}
		if found {
			return cfg, nil
		}
	}
	cfg, found, err := s.repo.GetThresholdConfig(ctx, nil, scope.SectionType)
	if err != nil {
		return domain.ThresholdConfiguration{}, err
	}
	if found {
		return cfg, nil
	}
	raw, err := s.defaults.JSON()
	if err != nil {
		return domain.ThresholdConfiguration{}, err
	}
	return domain.ThresholdConfiguration{SectionType: scope.SectionType, Rules: raw, UpdatedBy: domain.SystemActorName}, nil
}

// Rules decodes the configuration in force for scope.
func (s *Service) Rules(ctx context.Context, scope ports.RuleScope) (rules.RuleSet, error) {
	if scope.SectionType == "" {
		scope.SectionType = DefaultSectionType
	}
	cfg, err := s.Get(ctx, scope)
	if err != nil {
		return rules.RuleSet{}, err
	}
	if cfg.ID == "" {
		return s.defaults, nil
	}
	rs, err := rules.FromJSON(cfg.Rules)
	if err != nil {
		return rules.RuleSet{}, fmt.Errorf("stored configuration %s: %w", cfg.ID, err)
	}
	return rs, nil
}

// Update replaces the rules of exactly this scope and appends a history
// entry. Locked configurations accept edits from administrators only.
// Concurrent edits are last-write-wins; each one is kept in the history.
func (s *Service) Update(ctx context.Context, scope ports.RuleScope, raw []byte, actor domain.Actor) (domain.ThresholdConfiguration, error) {
	if err := checkScope(scope); err != nil {
		return domain.ThresholdConfiguration{}, err
	}
	if err := actor.Require(domain.PermEditThresholds); err != nil {
		return domain.ThresholdConfiguration{}, err
	}
	rs, err := rules.FromJSON(raw)
	if err != nil {
		return domain.ThresholdConfiguration{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	canonical, err := rs.JSON()
	if err != nil {
		return domain.ThresholdConfiguration{}, err
	}

	return s.apply(ctx, scope, ActionUpdate, actor, func(cur domain.ThresholdConfiguration, found bool) (domain.ThresholdConfiguration, []domain.FieldChange, error) {
		if found && cur.Locked && !actor.Can(domain.PermEditLockedConfig) {
			return domain.ThresholdConfiguration{}, nil, &domain.ConfigurationLockedError{ConfigID: cur.ID}
		}
		diff, err := Diff(cur.Rules, canonical)
		if err != nil {
			return domain.ThresholdConfiguration{}, nil, err
		}
		next := cur
		next.Rules = canonical
		return next, diff, nil
	})
}

// SetLocked sets the lock flag; admin only. Locking a scope that has no
// configuration of its own materializes the inherited rules first. Setting
// the flag to its current value changes nothing.
func (s *Service) SetLocked(ctx context.Context, scope ports.RuleScope, locked bool, actor domain.Actor) (domain.ThresholdConfiguration, error) {
	if err := checkScope(scope); err != nil {
		return domain.ThresholdConfiguration{}, err
	}
	if err := actor.Require(domain.PermLockThresholds); err != nil {
		return domain.ThresholdConfiguration{}, err
	}
	var inherited json.RawMessage
	if locked {
		cfg, err := s.Get(ctx, scope)
		if err != nil {
			return domain.ThresholdConfiguration{}, err
		}
		inherited = cfg.Rules
	}
	action := ActionUnlock
	if locked {
		action = ActionLock
	}
	saved, err := s.apply(ctx, scope, action, actor, func(cur domain.ThresholdConfiguration, found bool) (domain.ThresholdConfiguration, []domain.FieldChange, error) {
		if found && cur.Locked == locked {
			return cur, nil, &unchanged{cfg: cur}
		}
		if !found {
			if !locked {
				return domain.ThresholdConfiguration{}, nil, fmt.Errorf("threshold configuration for %s: %w", scope.SectionType, domain.ErrNotFound)
			}
			cur.Rules = inherited
		}
		next := cur
		next.Locked = locked
		return next, []domain.FieldChange{{Path: "/locked", Before: boolJSON(cur.Locked), After: boolJSON(locked)}}, nil
	})
	var same *unchanged
	if errors.As(err, &same) {
		return same.cfg, nil
	}
	return saved, err
}

// History lists the entries of exactly this scope, oldest first.
func (s *Service) History(ctx context.Context, scope ports.RuleScope) ([]domain.ThresholdHistoryEntry, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	cur, found, err := s.repo.GetThresholdConfig(ctx, scope.AuditID, scope.SectionType)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.ThresholdHistoryEntry{}, nil
	}
	return s.repo.ThresholdHistory(ctx, cur.ID)
}

// unchanged aborts a write that would not change the stored configuration.
type unchanged struct{ cfg domain.ThresholdConfiguration }

func (*unchanged) Error() string { return "threshold configuration unchanged" }

type mutation func(cur domain.ThresholdConfiguration, found bool) (domain.ThresholdConfiguration, []domain.FieldChange, error)

// apply runs mutate against the stored configuration of scope while the
// repository holds the scope, so the version and the diff always follow the
// row they replace. Concurrent edits therefore land one after the other.
func (s *Service) apply(ctx context.Context, scope ports.RuleScope, action string, actor domain.Actor, mutate mutation) (domain.ThresholdConfiguration, error) {
	var prev domain.ThresholdConfiguration
	saved, err := s.repo.UpdateThresholdConfig(ctx, scope.AuditID, scope.SectionType,
		func(cur domain.ThresholdConfiguration, found bool) (domain.ThresholdConfiguration, domain.ThresholdHistoryEntry, error) {
			next, diff, err := mutate(cur, found)
			if err != nil {
				return domain.ThresholdConfiguration{}, domain.ThresholdHistoryEntry{}, err
			}
			if !found {
				next.ID = uuid.NewString()
				next.AuditID = scope.AuditID
				next.SectionType = scope.SectionType
			}
			next.Version = cur.Version + 1
			next.UpdatedBy = actor.ID
			next.UpdatedAt = s.clock.Now()
			prev = cur
			return next, domain.ThresholdHistoryEntry{
				ID:        uuid.NewString(),
				ConfigID:  next.ID,
				Version:   next.Version,
				Snapshot:  next.Rules,
				Diff:      diff,
				Author:    actor.ID,
				Action:    action,
				CreatedAt: next.UpdatedAt,
			}, nil
		})
	if err != nil {
		return domain.ThresholdConfiguration{}, err
	}

	trail := domain.TrailEntry{
		ActorID:    actor.ID,
		ActorName:  actor.DisplayName(),
		Action:     "thresholds." + action,
		EntityType: entityThresholds,
		EntityID:   saved.ID,
		After:      snapshot(saved),
		At:         saved.UpdatedAt,
	}
	if prev.ID != "" {
		trail.Before = snapshot(prev)
	}
	if err := s.trail.RecordTrail(ctx, trail); err != nil {
		s.logger.Printf("thresholds: trail for %s: %v", saved.ID, err)
	}
	return saved, nil
}

func snapshot(c domain.ThresholdConfiguration) map[string]any {
	return map[string]any{
		"version":      c.Version,
		"section_type": c.SectionType,
		"locked":       c.Locked,
		"rules":        c.Rules,
	}
}

func boolJSON(b bool) json.RawMessage {
	if b {
		return json.RawMessage("true")
	}
	return json.RawMessage("false")
}
