package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"satdigital/internal/domain"
)

// RecordTrail appends one bitácora entry. Nil snapshots are stored as NULL.
func (db *DB) RecordTrail(ctx context.Context, e domain.TrailEntry) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO audit_trail (actor_id, actor_name, action, entity_type, entity_id, before_json, after_json, at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, e.ActorID, e.ActorName, e.Action, e.EntityType, e.EntityID, e.Before, e.After, e.At)
	if err != nil {
		return fmt.Errorf("record trail: %w", err)
	}
	return nil
}

type trailRow struct {
	ActorID    string         `db:"actor_id"`
	ActorName  string         `db:"actor_name"`
	Action     string         `db:"action"`
	EntityType string         `db:"entity_type"`
	EntityID   string         `db:"entity_id"`
	Before     map[string]any `db:"before_json"`
	After      map[string]any `db:"after_json"`
	At         time.Time      `db:"at"`
}

// TrailFor lists the entries recorded for one entity, oldest first.
func (db *DB) TrailFor(ctx context.Context, entityType, entityID string) ([]domain.TrailEntry, error) {
	rows, _ := db.Pool.Query(ctx, `
        SELECT actor_id, actor_name, action, entity_type, entity_id, before_json, after_json, at
        FROM audit_trail WHERE entity_type = $1 AND entity_id = $2 ORDER BY id
    `, entityType, entityID)
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[trailRow])
	if err != nil {
		return nil, fmt.Errorf("trail: %w", err)
	}
	out := make([]domain.TrailEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.TrailEntry{
			ActorID: r.ActorID, ActorName: r.ActorName, Action: r.Action, EntityType: r.EntityType,
			EntityID: r.EntityID, Before: r.Before, After: r.After, At: r.At.UTC(),
		})
	}
	return out, nil
}
