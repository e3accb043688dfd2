package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

type thresholdRow struct {
	ID          string    `db:"id"`
	AuditID     *string   `db:"audit_id"`
	SectionType string    `db:"section_type"`
	Rules       []byte    `db:"rules"`
	Locked      bool      `db:"locked"`
	Version     int       `db:"version"`
	UpdatedBy   string    `db:"updated_by"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// GetThresholdConfig looks up exactly the given scope; auditID nil is the
// global scope.
func (db *DB) GetThresholdConfig(ctx context.Context, auditID *string, sectionType string) (domain.ThresholdConfiguration, bool, error) {
	return thresholdConfig(ctx, db.Pool, auditID, sectionType)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func thresholdConfig(ctx context.Context, q querier, auditID *string, sectionType string) (domain.ThresholdConfiguration, bool, error) {
	rows, _ := q.Query(ctx, `
        SELECT id, audit_id, section_type, rules, locked, version, updated_by, updated_at
        FROM threshold_configurations
        WHERE section_type = $1 AND audit_id IS NOT DISTINCT FROM $2
    `, sectionType, auditID)
	r, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[thresholdRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ThresholdConfiguration{}, false, nil
	}
	if err != nil {
		return domain.ThresholdConfiguration{}, false, fmt.Errorf("get threshold config: %w", err)
	}
	return domain.ThresholdConfiguration{
		ID: r.ID, AuditID: r.AuditID, SectionType: r.SectionType, Rules: json.RawMessage(r.Rules),
		Locked: r.Locked, Version: r.Version, UpdatedBy: r.UpdatedBy, UpdatedAt: r.UpdatedAt.UTC(),
	}, true, nil
}

// UpdateThresholdConfig takes a transaction-scoped advisory lock on the scope
// so that concurrent writers, including two creating the scope, run one
// after the other.
func (db *DB) UpdateThresholdConfig(ctx context.Context, auditID *string, sectionType string, change ports.ThresholdChange) (domain.ThresholdConfiguration, error) {
	scopeKey := "thresholds:" + sectionType
	if auditID != nil {
		scopeKey += ":" + *auditID
	}
	var saved domain.ThresholdConfiguration
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scopeKey); err != nil {
			return fmt.Errorf("lock threshold scope: %w", err)
		}
		cur, found, err := thresholdConfig(ctx, tx, auditID, sectionType)
		if err != nil {
			return err
		}
		cfg, entry, err := change(cur, found)
		if err != nil {
			return err
		}
		diff, err := json.Marshal(nonNil(entry.Diff))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO threshold_configurations (id, audit_id, section_type, rules, locked, version, updated_by, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (id) DO UPDATE SET rules = EXCLUDED.rules, locked = EXCLUDED.locked,
                version = EXCLUDED.version, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
        `, cfg.ID, cfg.AuditID, cfg.SectionType, string(cfg.Rules), cfg.Locked, cfg.Version, cfg.UpdatedBy, cfg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert threshold config: %w", err)
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO threshold_history (id, config_id, version, snapshot, diff, author, action, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        `, entry.ID, cfg.ID, entry.Version, string(entry.Snapshot), string(diff), entry.Author, entry.Action, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert threshold history: %w", err)
		}
		saved = cfg
		return nil
	})
	if err != nil {
		return domain.ThresholdConfiguration{}, err
	}
	return saved, nil
}

type historyRow struct {
	ID        string               `db:"id"`
	ConfigID  string               `db:"config_id"`
	Version   int                  `db:"version"`
	Snapshot  []byte               `db:"snapshot"`
	Diff      []domain.FieldChange `db:"diff"`
	Author    string               `db:"author"`
	Action    string               `db:"action"`
	CreatedAt time.Time            `db:"created_at"`
}

func (db *DB) ThresholdHistory(ctx context.Context, configID string) ([]domain.ThresholdHistoryEntry, error) {
	rows, _ := db.Pool.Query(ctx, `
        SELECT id, config_id, version, snapshot, diff, author, action, created_at
        FROM threshold_history WHERE config_id = $1 ORDER BY version
    `, configID)
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[historyRow])
	if err != nil {
		return nil, fmt.Errorf("threshold history: %w", err)
	}
	out := make([]domain.ThresholdHistoryEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.ThresholdHistoryEntry{
			ID: r.ID, ConfigID: r.ConfigID, Version: r.Version, Snapshot: json.RawMessage(r.Snapshot),
			Diff: r.Diff, Author: r.Author, Action: r.Action, CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return out, nil
}
