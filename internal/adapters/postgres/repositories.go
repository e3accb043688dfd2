package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"satdigital/internal/domain"
)

type auditRow struct {
	ID             string     `db:"id"`
	SiteID         string     `db:"site_id"`
	ProviderID     string     `db:"provider_id"`
	AuditorID      *string    `db:"auditor_id"`
	PeriodCode     string     `db:"period_code"`
	State          string     `db:"state"`
	UploadStartsAt *time.Time `db:"upload_starts_at"`
	UploadDeadline *time.Time `db:"upload_deadline"`
	VisitDate      *time.Time `db:"visit_date"`
	StateChangedAt time.Time  `db:"state_changed_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func (r auditRow) toDomain() domain.Audit {
	return domain.Audit{
		ID: r.ID, SiteID: r.SiteID, ProviderID: r.ProviderID, AuditorID: r.AuditorID,
		PeriodCode: r.PeriodCode, State: domain.State(r.State),
		UploadStartsAt: utcPtr(r.UploadStartsAt), UploadDeadline: utcPtr(r.UploadDeadline), VisitDate: utcPtr(r.VisitDate),
		StateChangedAt: r.StateChangedAt.UTC(), CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

const auditSelect = `
    SELECT id, site_id, provider_id, auditor_id, period_code, state,
           upload_starts_at, upload_deadline, visit_date,
           state_changed_at, created_at, updated_at
    FROM audits`

func (db *DB) CreateAudit(ctx context.Context, a domain.Audit) (domain.Audit, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.State == "" {
		a.State = domain.StateScheduled
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.StateChangedAt.IsZero() {
		a.StateChangedAt = a.CreatedAt
	}
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO audits (id, site_id, provider_id, auditor_id, period_code, state,
                            upload_starts_at, upload_deadline, visit_date,
                            state_changed_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
    `, a.ID, a.SiteID, a.ProviderID, a.AuditorID, a.PeriodCode, string(a.State),
		a.UploadStartsAt, a.UploadDeadline, a.VisitDate, a.StateChangedAt, a.CreatedAt)
	if err != nil {
		return domain.Audit{}, fmt.Errorf("create audit: %w", err)
	}
	return db.GetAudit(ctx, a.ID)
}

// CreateAudits leaves existing (site, period) pairs alone; RETURNING only
// yields the rows this call inserted.
func (db *DB) CreateAudits(ctx context.Context, audits []domain.Audit) ([]domain.Audit, error) {
	var ids []string
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		for _, a := range audits {
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			if a.State == "" {
				a.State = domain.StateScheduled
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = time.Now().UTC()
			}
			rows, _ := tx.Query(ctx, `
                INSERT INTO audits (id, site_id, provider_id, auditor_id, period_code, state,
                                    upload_starts_at, upload_deadline, visit_date,
                                    state_changed_at, created_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10, $10)
                ON CONFLICT (site_id, period_code) DO NOTHING
                RETURNING id
            `, a.ID, a.SiteID, a.ProviderID, a.AuditorID, a.PeriodCode, string(a.State),
				a.UploadStartsAt, a.UploadDeadline, a.VisitDate, a.CreatedAt)
			inserted, err := pgx.CollectRows(rows, pgx.RowTo[string])
			if err != nil {
				return fmt.Errorf("create audit for site %s: %w", a.SiteID, err)
			}
			ids = append(ids, inserted...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Audit, 0, len(ids))
	for _, id := range ids {
		a, err := db.GetAudit(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (db *DB) ListAuditsByPeriod(ctx context.Context, periodCode string) ([]domain.Audit, error) {
	rows, _ := db.Pool.Query(ctx, auditSelect+` WHERE period_code = $1 ORDER BY site_id`, periodCode)
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[auditRow])
	if err != nil {
		return nil, fmt.Errorf("list audits by period: %w", err)
	}
	out := make([]domain.Audit, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (db *DB) SetAuditor(ctx context.Context, auditID string, auditorID *string, at time.Time) (domain.Audit, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE audits SET auditor_id = $2, updated_at = $3 WHERE id = $1`, auditID, auditorID, at)
	if err != nil {
		return domain.Audit{}, fmt.Errorf("set auditor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Audit{}, fmt.Errorf("audit %s: %w", auditID, domain.ErrNotFound)
	}
	return db.GetAudit(ctx, auditID)
}

func (db *DB) GetAudit(ctx context.Context, auditID string) (domain.Audit, error) {
	rows, _ := db.Pool.Query(ctx, auditSelect+` WHERE id = $1`, auditID)
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[auditRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Audit{}, fmt.Errorf("audit %s: %w", auditID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Audit{}, fmt.Errorf("get audit: %w", err)
	}
	return row.toDomain(), nil
}

func (db *DB) ListAuditIDsByState(ctx context.Context, states []domain.State) ([]string, error) {
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, string(s))
	}
	rows, _ := db.Pool.Query(ctx, `SELECT id FROM audits WHERE state = ANY($1) ORDER BY created_at, id`, names)
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list audits by state: %w", err)
	}
	return ids, nil
}

// CompareAndSwapState relies on row locking: a concurrent writer blocks on
// the UPDATE, re-checks the state predicate after the first commits and
// matches zero rows.
func (db *DB) CompareAndSwapState(ctx context.Context, auditID string, from, to domain.State, change domain.StateChange) (bool, error) {
	applied := false
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE audits SET state = $3, state_changed_at = $4, updated_at = $4
            WHERE id = $1 AND state = $2
        `, auditID, string(from), string(to), change.At)
		if err != nil {
			return fmt.Errorf("update state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if change.ID == "" {
			change.ID = uuid.NewString()
		}
		conditions, err := json.Marshal(nonNil(change.Conditions))
		if err != nil {
			return err
		}
		// The UPDATE holds the audit row lock, so seq cannot race.
		var seq int
		if err := tx.QueryRow(ctx, `
            SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_state_history WHERE audit_id = $1
        `, auditID).Scan(&seq); err != nil {
			return fmt.Errorf("next history seq: %w", err)
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO audit_state_history (id, audit_id, seq, from_state, to_state, kind,
                                             actor_id, actor_name, justification, conditions, at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        `, change.ID, auditID, seq, string(from), string(to), string(change.Kind),
			change.ActorID, change.ActorName, change.Justification, string(conditions), change.At)
		if err != nil {
			return fmt.Errorf("insert state history: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

type stateChangeRow struct {
	ID            string    `db:"id"`
	AuditID       string    `db:"audit_id"`
	From          string    `db:"from_state"`
	To            string    `db:"to_state"`
	Kind          string    `db:"kind"`
	ActorID       string    `db:"actor_id"`
	ActorName     string    `db:"actor_name"`
	Justification string    `db:"justification"`
	Conditions    []string  `db:"conditions"`
	At            time.Time `db:"at"`
}

func (db *DB) StateHistory(ctx context.Context, auditID string) ([]domain.StateChange, error) {
	rows, _ := db.Pool.Query(ctx, `
        SELECT id, audit_id, from_state, to_state, kind, actor_id, actor_name, justification, conditions, at
        FROM audit_state_history WHERE audit_id = $1 ORDER BY seq
    `, auditID)
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[stateChangeRow])
	if err != nil {
		return nil, fmt.Errorf("state history: %w", err)
	}
	out := make([]domain.StateChange, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.StateChange{
			ID: r.ID, AuditID: r.AuditID, From: domain.State(r.From), To: domain.State(r.To),
			Kind: domain.CauseKind(r.Kind), ActorID: r.ActorID, ActorName: r.ActorName,
			Justification: r.Justification, Conditions: r.Conditions, At: r.At.UTC(),
		})
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
