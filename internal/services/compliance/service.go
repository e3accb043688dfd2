package compliance

import (
	"context"
	"fmt"

	"satdigital/internal/domain"
	"satdigital/internal/metrics"
	"satdigital/internal/ports"
	"satdigital/internal/services/inventory"
	"satdigital/internal/services/rules"
)

var defaultNormalizer = inventory.New()

// ValidateInventoryRow normalizes row with the default policies and checks it
// against rs.
func ValidateInventoryRow(row map[string]string, rs rules.RuleSet) domain.InventoryResult {
	res, _ := validateRow(defaultNormalizer, row, 1, rs)
	return res
}

func validateRow(n *inventory.Normalizer, row map[string]string, rowNum int, rs rules.RuleSet) (domain.InventoryResult, []domain.ParseWarning) {
	asset, warnings := n.Normalize(inventory.Row(row), rowNum)
	v := Validate(asset, rs)
	reasons := v.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return domain.InventoryResult{
		Row:          rowNum,
		Normalized:   asset,
		Compliant:    v.Compliant,
		Reasons:      reasons,
		Observations: v.Observations,
	}, warnings
}

// RuleSource resolves the rule set in force for a scope.
type RuleSource interface {
	Rules(ctx context.Context, scope ports.RuleScope) (rules.RuleSet, error)
}

// Service validates inventory rows against the configured thresholds.
type Service struct {
	source     RuleSource
	normalizer *inventory.Normalizer
	metrics    *metrics.Metrics
}

func NewService(source RuleSource, normalizer *inventory.Normalizer, m *metrics.Metrics) *Service {
	if normalizer == nil {
		normalizer = defaultNormalizer
	}
	return &Service{source: source, normalizer: normalizer, metrics: m}
}

func (s *Service) ValidateRow(ctx context.Context, row map[string]string, scope ports.RuleScope) (domain.InventoryResult, []domain.ParseWarning, error) {
	rs, err := s.source.Rules(ctx, scope)
	if err != nil {
		return domain.InventoryResult{}, nil, fmt.Errorf("resolve rules: %w", err)
	}
	res, warnings := validateRow(s.normalizer, row, 1, rs)
	s.metrics.Validation(res.Compliant, len(warnings))
	return res, warnings, nil
}

// ValidateBatch resolves the rules once and validates every row; parse
// warnings are aggregated and never abort the batch.
func (s *Service) ValidateBatch(ctx context.Context, rows []map[string]string, scope ports.RuleScope) (domain.InventoryBatchResult, error) {
	rs, err := s.source.Rules(ctx, scope)
	if err != nil {
		return domain.InventoryBatchResult{}, fmt.Errorf("resolve rules: %w", err)
	}
	out := domain.InventoryBatchResult{Results: make([]domain.InventoryResult, 0, len(rows))}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return domain.InventoryBatchResult{}, err
		}
		res, warnings := validateRow(s.normalizer, row, i+1, rs)
		s.metrics.Validation(res.Compliant, len(warnings))
		out.Results = append(out.Results, res)
		out.Warnings = append(out.Warnings, warnings...)
		if res.Compliant {
			out.Compliant++
		} else {
			out.Failed++
		}
	}
	return out, nil
}

// StaticRules serves one rule set regardless of scope. The offline CLI uses
// it with a rules file.
type StaticRules rules.RuleSet

func (r StaticRules) Rules(context.Context, ports.RuleScope) (rules.RuleSet, error) {
	return rules.RuleSet(r), nil
}
