package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"satdigital/internal/domain"
)

type auditRow struct {
	ID             string         `db:"id"`
	SiteID         string         `db:"site_id"`
	ProviderID     string         `db:"provider_id"`
	AuditorID      sql.NullString `db:"auditor_id"`
	PeriodCode     string         `db:"period_code"`
	State          string         `db:"state"`
	UploadStartsAt sql.NullInt64  `db:"upload_starts_at_ms"`
	UploadDeadline sql.NullInt64  `db:"upload_deadline_ms"`
	VisitDate      sql.NullInt64  `db:"visit_date_ms"`
	StateChangedAt int64          `db:"state_changed_at_ms"`
	CreatedAt      int64          `db:"created_at_ms"`
	UpdatedAt      int64          `db:"updated_at_ms"`
}

func (r auditRow) toDomain() domain.Audit {
	return domain.Audit{
		ID:             r.ID,
		SiteID:         r.SiteID,
		ProviderID:     r.ProviderID,
		AuditorID:      stringPtr(r.AuditorID),
		PeriodCode:     r.PeriodCode,
		State:          domain.State(r.State),
		UploadStartsAt: timePtr(r.UploadStartsAt),
		UploadDeadline: timePtr(r.UploadDeadline),
		VisitDate:      timePtr(r.VisitDate),
		StateChangedAt: fromMS(r.StateChangedAt),
		CreatedAt:      fromMS(r.CreatedAt),
		UpdatedAt:      fromMS(r.UpdatedAt),
	}
}

var auditColumns = []string{
	"id", "site_id", "provider_id", "auditor_id", "period_code", "state",
	"upload_starts_at_ms", "upload_deadline_ms", "visit_date_ms",
	"state_changed_at_ms", "created_at_ms", "updated_at_ms",
}

// CreateAudit inserts a. Empty ID and State default to a fresh UUID and
// scheduled.
func (s *Store) CreateAudit(ctx context.Context, a domain.Audit) (domain.Audit, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.State == "" {
		a.State = domain.StateScheduled
	}
	if a.CreatedAt.IsZero() {
		return domain.Audit{}, errors.New("create audit: CreatedAt is required")
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	if a.StateChangedAt.IsZero() {
		a.StateChangedAt = a.CreatedAt
	}
	query, args, err := s.sb.Insert("audits").Columns(auditColumns...).Values(
		a.ID, a.SiteID, a.ProviderID, nullString(a.AuditorID), a.PeriodCode, string(a.State),
		nullMS(a.UploadStartsAt), nullMS(a.UploadDeadline), nullMS(a.VisitDate),
		toMS(a.StateChangedAt), toMS(a.CreatedAt), toMS(a.UpdatedAt),
	).ToSql()
	if err != nil {
		return domain.Audit{}, err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Audit{}, fmt.Errorf("create audit: %w", err)
	}
	return s.GetAudit(ctx, a.ID)
}

// CreateAudits skips audits whose (site, period) pair already exists; the
// unique index decides, so concurrent generators cannot duplicate a site.
func (s *Store) CreateAudits(ctx context.Context, audits []domain.Audit) ([]domain.Audit, error) {
	var ids []string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, a := range audits {
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			if a.State == "" {
				a.State = domain.StateScheduled
			}
			if a.CreatedAt.IsZero() {
				return errors.New("create audits: CreatedAt is required")
			}
			query, args, err := s.sb.Insert("audits").Columns(auditColumns...).Values(
				a.ID, a.SiteID, a.ProviderID, nullString(a.AuditorID), a.PeriodCode, string(a.State),
				nullMS(a.UploadStartsAt), nullMS(a.UploadDeadline), nullMS(a.VisitDate),
				toMS(a.CreatedAt), toMS(a.CreatedAt), toMS(a.CreatedAt),
			).Suffix("ON CONFLICT (site_id, period_code) DO NOTHING").ToSql()
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("create audit for site %s: %w", a.SiteID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 1 {
				ids = append(ids, a.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Audit, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetAudit(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) ListAuditsByPeriod(ctx context.Context, periodCode string) ([]domain.Audit, error) {
	query, args, err := s.sb.Select(auditColumns...).From("audits").
		Where(sq.Eq{"period_code": periodCode}).
		OrderBy("site_id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list audits by period: %w", err)
	}
	out := make([]domain.Audit, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) SetAuditor(ctx context.Context, auditID string, auditorID *string, at time.Time) (domain.Audit, error) {
	query, args, err := s.sb.Update("audits").
		Set("auditor_id", nullString(auditorID)).
		Set("updated_at_ms", toMS(at)).
		Where(sq.Eq{"id": auditID}).ToSql()
	if err != nil {
		return domain.Audit{}, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Audit{}, fmt.Errorf("set auditor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Audit{}, err
	}
	if n == 0 {
		return domain.Audit{}, fmt.Errorf("audit %s: %w", auditID, domain.ErrNotFound)
	}
	return s.GetAudit(ctx, auditID)
}

func (s *Store) GetAudit(ctx context.Context, auditID string) (domain.Audit, error) {
	query, args, err := s.sb.Select(auditColumns...).From("audits").Where(sq.Eq{"id": auditID}).ToSql()
	if err != nil {
		return domain.Audit{}, err
	}
	var row auditRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Audit{}, fmt.Errorf("audit %s: %w", auditID, domain.ErrNotFound)
		}
		return domain.Audit{}, fmt.Errorf("get audit: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAuditIDsByState(ctx context.Context, states []domain.State) ([]string, error) {
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, string(st))
	}
	query, args, err := s.sb.Select("id").From("audits").
		Where(sq.Eq{"state": names}).
		OrderBy("created_at_ms", "id").ToSql()
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list audits by state: %w", err)
	}
	return ids, nil
}

// CompareAndSwapState updates the state only where it still equals from and
// appends the history row in the same transaction.
func (s *Store) CompareAndSwapState(ctx context.Context, auditID string, from, to domain.State, change domain.StateChange) (bool, error) {
	applied := false
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		at := toMS(change.At)
		query, args, err := s.sb.Update("audits").
			Set("state", string(to)).
			Set("state_changed_at_ms", at).
			Set("updated_at_ms", at).
			Where(sq.Eq{"id": auditID, "state": string(from)}).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update state: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := insertStateChange(ctx, tx, s.sb, auditID, from, to, change); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func insertStateChange(ctx context.Context, tx *sqlx.Tx, sb sq.StatementBuilderType, auditID string, from, to domain.State, c domain.StateChange) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	conditions, err := json.Marshal(nonNil(c.Conditions))
	if err != nil {
		return err
	}
	var seq int
	if err := tx.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_state_history WHERE audit_id = ?`, auditID); err != nil {
		return fmt.Errorf("next history seq: %w", err)
	}
	query, args, err := sb.Insert("audit_state_history").
		Columns("id", "audit_id", "seq", "from_state", "to_state", "kind", "actor_id", "actor_name", "justification", "conditions", "at_ms").
		Values(c.ID, auditID, seq, string(from), string(to), string(c.Kind), c.ActorID, c.ActorName, c.Justification, string(conditions), toMS(c.At)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert state history: %w", err)
	}
	return nil
}

type stateChangeRow struct {
	ID            string `db:"id"`
	AuditID       string `db:"audit_id"`
	From          string `db:"from_state"`
	To            string `db:"to_state"`
	Kind          string `db:"kind"`
	ActorID       string `db:"actor_id"`
	ActorName     string `db:"actor_name"`
	Justification string `db:"justification"`
	Conditions    string `db:"conditions"`
	At            int64  `db:"at_ms"`
}

// StateHistory returns the audit's transitions in the order they applied.
func (s *Store) StateHistory(ctx context.Context, auditID string) ([]domain.StateChange, error) {
	query, args, err := s.sb.Select("id", "audit_id", "from_state", "to_state", "kind", "actor_id", "actor_name", "justification", "conditions", "at_ms").
		From("audit_state_history").
		Where(sq.Eq{"audit_id": auditID}).
		OrderBy("seq").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []stateChangeRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("state history: %w", err)
	}
	out := make([]domain.StateChange, 0, len(rows))
	for _, r := range rows {
		var conditions []string
		if err := json.Unmarshal([]byte(r.Conditions), &conditions); err != nil {
			return nil, fmt.Errorf("decode conditions: %w", err)
		}
		out = append(out, domain.StateChange{
			ID:            r.ID,
			AuditID:       r.AuditID,
			From:          domain.State(r.From),
			To:            domain.State(r.To),
			Kind:          domain.CauseKind(r.Kind),
			ActorID:       r.ActorID,
			ActorName:     r.ActorName,
			Justification: r.Justification,
			Conditions:    conditions,
			At:            fromMS(r.At),
		})
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
