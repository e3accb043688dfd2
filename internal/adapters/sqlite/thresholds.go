package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

type thresholdRow struct {
	ID          string         `db:"id"`
	AuditID     sql.NullString `db:"audit_id"`
	SectionType string         `db:"section_type"`
	Rules       string         `db:"rules"`
	Locked      bool           `db:"locked"`
	Version     int            `db:"version"`
	UpdatedBy   string         `db:"updated_by"`
	UpdatedAt   int64          `db:"updated_at_ms"`
}

var thresholdColumns = []string{"id", "audit_id", "section_type", "rules", "locked", "version", "updated_by", "updated_at_ms"}

// GetThresholdConfig looks up exactly the given scope; auditID nil is the
// global scope.
func (s *Store) GetThresholdConfig(ctx context.Context, auditID *string, sectionType string) (domain.ThresholdConfiguration, bool, error) {
	return s.thresholdConfig(ctx, s.db, auditID, sectionType)
}

func (s *Store) thresholdConfig(ctx context.Context, q sqlx.QueryerContext, auditID *string, sectionType string) (domain.ThresholdConfiguration, bool, error) {
	where := sq.And{sq.Eq{"section_type": sectionType}}
	if auditID == nil {
		where = append(where, sq.Eq{"audit_id": nil})
	} else {
		where = append(where, sq.Eq{"audit_id": *auditID})
	}
	query, args, err := s.sb.Select(thresholdColumns...).From("threshold_configurations").Where(where).ToSql()
	if err != nil {
		return domain.ThresholdConfiguration{}, false, err
	}
	var rows []thresholdRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return domain.ThresholdConfiguration{}, false, fmt.Errorf("get threshold config: %w", err)
	}
	if len(rows) == 0 {
		return domain.ThresholdConfiguration{}, false, nil
	}
	r := rows[0]
	return domain.ThresholdConfiguration{
		ID:          r.ID,
		AuditID:     stringPtr(r.AuditID),
		SectionType: r.SectionType,
		Rules:       json.RawMessage(r.Rules),
		Locked:      r.Locked,
		Version:     r.Version,
		UpdatedBy:   r.UpdatedBy,
		UpdatedAt:   fromMS(r.UpdatedAt),
	}, true, nil
}

// UpdateThresholdConfig reads the scope and writes change's result inside one
// transaction. The store has a single connection, so transactions on it never
// interleave.
func (s *Store) UpdateThresholdConfig(ctx context.Context, auditID *string, sectionType string, change ports.ThresholdChange) (domain.ThresholdConfiguration, error) {
	var saved domain.ThresholdConfiguration
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		cur, found, err := s.thresholdConfig(ctx, tx, auditID, sectionType)
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
		query, args, err := s.sb.Insert("threshold_configurations").Columns(thresholdColumns...).Values(
			cfg.ID, nullString(cfg.AuditID), cfg.SectionType, string(cfg.Rules), boolInt(cfg.Locked),
			cfg.Version, cfg.UpdatedBy, toMS(cfg.UpdatedAt),
		).Suffix(`ON CONFLICT (id) DO UPDATE SET rules = excluded.rules, locked = excluded.locked,
			version = excluded.version, updated_by = excluded.updated_by, updated_at_ms = excluded.updated_at_ms`).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert threshold config: %w", err)
		}
		query, args, err = s.sb.Insert("threshold_history").
			Columns("id", "config_id", "version", "snapshot", "diff", "author", "action", "created_at_ms").
			Values(entry.ID, cfg.ID, entry.Version, string(entry.Snapshot), string(diff), entry.Author, entry.Action, toMS(entry.CreatedAt)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
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
	ID        string `db:"id"`
	ConfigID  string `db:"config_id"`
	Version   int    `db:"version"`
	Snapshot  string `db:"snapshot"`
	Diff      string `db:"diff"`
	Author    string `db:"author"`
	Action    string `db:"action"`
	CreatedAt int64  `db:"created_at_ms"`
}

func (s *Store) ThresholdHistory(ctx context.Context, configID string) ([]domain.ThresholdHistoryEntry, error) {
	query, args, err := s.sb.Select("id", "config_id", "version", "snapshot", "diff", "author", "action", "created_at_ms").
		From("threshold_history").Where(sq.Eq{"config_id": configID}).OrderBy("version").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("threshold history: %w", err)
	}
	out := make([]domain.ThresholdHistoryEntry, 0, len(rows))
	for _, r := range rows {
		var diff []domain.FieldChange
		if err := json.Unmarshal([]byte(r.Diff), &diff); err != nil {
			return nil, fmt.Errorf("decode diff: %w", err)
		}
		out = append(out, domain.ThresholdHistoryEntry{
			ID: r.ID, ConfigID: r.ConfigID, Version: r.Version,
			Snapshot: json.RawMessage(r.Snapshot), Diff: diff,
			Author: r.Author, Action: r.Action, CreatedAt: fromMS(r.CreatedAt),
		})
	}
	return out, nil
}
