package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"satdigital/internal/domain"
)

// RecordTrail appends one bitácora entry.
func (s *Store) RecordTrail(ctx context.Context, e domain.TrailEntry) error {
	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return err
	}
	query, args, err := s.sb.Insert("audit_trail").
		Columns("actor_id", "actor_name", "action", "entity_type", "entity_id", "before_json", "after_json", "at_ms").
		Values(e.ActorID, e.ActorName, e.Action, e.EntityType, e.EntityID, before, after, toMS(e.At)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record trail: %w", err)
	}
	return nil
}

// TrailFor lists the entries recorded for one entity, oldest first.
func (s *Store) TrailFor(ctx context.Context, entityType, entityID string) ([]domain.TrailEntry, error) {
	query, args, err := s.sb.Select("actor_id", "actor_name", "action", "entity_type", "entity_id", "before_json", "after_json", "at_ms").
		From("audit_trail").Where(sq.Eq{"entity_type": entityType, "entity_id": entityID}).OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ActorID    string         `db:"actor_id"`
		ActorName  string         `db:"actor_name"`
		Action     string         `db:"action"`
		EntityType string         `db:"entity_type"`
		EntityID   string         `db:"entity_id"`
		Before     sql.NullString `db:"before_json"`
		After      sql.NullString `db:"after_json"`
		At         int64          `db:"at_ms"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("trail: %w", err)
	}
	out := make([]domain.TrailEntry, 0, len(rows))
	for _, r := range rows {
		e := domain.TrailEntry{
			ActorID: r.ActorID, ActorName: r.ActorName, Action: r.Action,
			EntityType: r.EntityType, EntityID: r.EntityID, At: fromMS(r.At),
		}
		if e.Before, err = unmarshalSnapshot(r.Before); err != nil {
			return nil, err
		}
		if e.After, err = unmarshalSnapshot(r.After); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func marshalSnapshot(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode trail snapshot: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalSnapshot(v sql.NullString) (map[string]any, error) {
	if !v.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(v.String), &m); err != nil {
		return nil, fmt.Errorf("decode trail snapshot: %w", err)
	}
	return m, nil
}
