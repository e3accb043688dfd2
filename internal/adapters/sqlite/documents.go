package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"satdigital/internal/domain"
)

type sectionRow struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	SectionType    string `db:"section_type"`
	Order          int    `db:"sort_order"`
	Obligatory     bool   `db:"obligatory"`
	AllowedFormats string `db:"allowed_formats"`
}

func (s *Store) UpsertSection(ctx context.Context, sec domain.TechnicalSection) error {
	formats, err := json.Marshal(nonNil(sec.AllowedFormats))
	if err != nil {
		return err
	}
	query, args, err := s.sb.Insert("technical_sections").
		Columns("id", "name", "section_type", "sort_order", "obligatory", "allowed_formats").
		Values(sec.ID, sec.Name, sec.SectionType, sec.Order, boolInt(sec.Obligatory), string(formats)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET name = excluded.name, section_type = excluded.section_type,
			sort_order = excluded.sort_order, obligatory = excluded.obligatory, allowed_formats = excluded.allowed_formats`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert section: %w", err)
	}
	return nil
}

func (s *Store) ListSections(ctx context.Context) ([]domain.TechnicalSection, error) {
	query, args, err := s.sb.Select("id", "name", "section_type", "sort_order", "obligatory", "allowed_formats").
		From("technical_sections").OrderBy("sort_order", "id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []sectionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	out := make([]domain.TechnicalSection, 0, len(rows))
	for _, r := range rows {
		var formats []string
		if err := json.Unmarshal([]byte(r.AllowedFormats), &formats); err != nil {
			return nil, fmt.Errorf("decode allowed formats: %w", err)
		}
		out = append(out, domain.TechnicalSection{
			ID: r.ID, Name: r.Name, SectionType: r.SectionType,
			Order: r.Order, Obligatory: r.Obligatory, AllowedFormats: formats,
		})
	}
	return out, nil
}

type documentRow struct {
	ID            string `db:"id"`
	AuditID       string `db:"audit_id"`
	SectionID     string `db:"section_id"`
	UploadedBy    string `db:"uploaded_by"`
	Filename      string `db:"filename"`
	ContentHash   string `db:"content_hash"`
	SizeBytes     int64  `db:"size_bytes"`
	StoragePath   string `db:"storage_path"`
	Version       int    `db:"version"`
	Superseded    bool   `db:"superseded"`
	AnalysisState string `db:"analysis_state"`
	UploadedAt    int64  `db:"uploaded_at_ms"`
}

func (r documentRow) toDomain() domain.Document {
	return domain.Document{
		ID: r.ID, AuditID: r.AuditID, SectionID: r.SectionID, UploadedBy: r.UploadedBy,
		Filename: r.Filename, ContentHash: r.ContentHash, SizeBytes: r.SizeBytes,
		StoragePath: r.StoragePath, Version: r.Version, Superseded: r.Superseded,
		AnalysisState: domain.AnalysisState(r.AnalysisState), UploadedAt: fromMS(r.UploadedAt),
	}
}

var documentColumns = []string{
	"id", "audit_id", "section_id", "uploaded_by", "filename", "content_hash",
	"size_bytes", "storage_path", "version", "superseded", "analysis_state", "uploaded_at_ms",
}

func (s *Store) selectDocuments(ctx context.Context, where sq.Sqlizer) ([]domain.Document, error) {
	query, args, err := s.sb.Select(documentColumns...).From("documents").
		Where(where).OrderBy("section_id", "version").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	out := make([]domain.Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ActiveDocuments(ctx context.Context, auditID string) ([]domain.Document, error) {
	return s.selectDocuments(ctx, sq.Eq{"audit_id": auditID, "superseded": 0})
}

func (s *Store) FindDocumentByHash(ctx context.Context, auditID, sectionID, hash string) (domain.Document, bool, error) {
	docs, err := s.selectDocuments(ctx, sq.Eq{"audit_id": auditID, "section_id": sectionID, "content_hash": hash})
	if err != nil || len(docs) == 0 {
		return domain.Document{}, false, err
	}
	return docs[0], true, nil
}

// SaveDocumentVersion supersedes the current version of the (audit, section)
// pair and inserts doc as the next one.
func (s *Store) SaveDocumentVersion(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.AnalysisState == "" {
		doc.AnalysisState = domain.AnalysisPending
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &doc.Version,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM documents WHERE audit_id = ? AND section_id = ?`,
			doc.AuditID, doc.SectionID); err != nil {
			return fmt.Errorf("next document version: %w", err)
		}
		query, args, err := s.sb.Update("documents").Set("superseded", 1).
			Where(sq.Eq{"audit_id": doc.AuditID, "section_id": doc.SectionID, "superseded": 0}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("supersede documents: %w", err)
		}
		query, args, err = s.sb.Insert("documents").Columns(documentColumns...).Values(
			doc.ID, doc.AuditID, doc.SectionID, doc.UploadedBy, doc.Filename, doc.ContentHash,
			doc.SizeBytes, doc.StoragePath, doc.Version, 0, string(doc.AnalysisState), toMS(doc.UploadedAt),
		).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	doc.Superseded = false
	return doc, nil
}

type evaluationRow struct {
	ID                    string  `db:"id"`
	AuditID               string  `db:"audit_id"`
	SectionID             string  `db:"section_id"`
	AuditorID             string  `db:"auditor_id"`
	Result                string  `db:"result"`
	Score                 float64 `db:"score"`
	Observations          string  `db:"observations"`
	Criteria              string  `db:"criteria"`
	RequiresClarification bool    `db:"requires_clarification"`
	DocumentVersion       int     `db:"document_version"`
	EvaluatedAt           int64   `db:"evaluated_at_ms"`
}

var evaluationColumns = []string{
	"id", "audit_id", "section_id", "auditor_id", "result", "score", "observations",
	"criteria", "requires_clarification", "document_version", "evaluated_at_ms",
}

func (s *Store) ListEvaluations(ctx context.Context, auditID string) ([]domain.Evaluation, error) {
	query, args, err := s.sb.Select(evaluationColumns...).From("evaluations").
		Where(sq.Eq{"audit_id": auditID}).OrderBy("section_id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []evaluationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	out := make([]domain.Evaluation, 0, len(rows))
	for _, r := range rows {
		var criteria []domain.Criterion
		if err := json.Unmarshal([]byte(r.Criteria), &criteria); err != nil {
			return nil, fmt.Errorf("decode criteria: %w", err)
		}
		out = append(out, domain.Evaluation{
			ID: r.ID, AuditID: r.AuditID, SectionID: r.SectionID, AuditorID: r.AuditorID,
			Result: domain.EvaluationResult(r.Result), Score: r.Score, Observations: r.Observations,
			Criteria: criteria, RequiresClarification: r.RequiresClarification,
			DocumentVersion: r.DocumentVersion, EvaluatedAt: fromMS(r.EvaluatedAt),
		})
	}
	return out, nil
}

// UpsertEvaluation keeps one row per (audit, section); a re-evaluation
// overwrites the previous verdict and keeps its ID.
func (s *Store) UpsertEvaluation(ctx context.Context, ev domain.Evaluation) (domain.Evaluation, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	criteria, err := json.Marshal(nonNil(ev.Criteria))
	if err != nil {
		return domain.Evaluation{}, err
	}
	query, args, err := s.sb.Insert("evaluations").Columns(evaluationColumns...).Values(
		ev.ID, ev.AuditID, ev.SectionID, ev.AuditorID, string(ev.Result), ev.Score, ev.Observations,
		string(criteria), boolInt(ev.RequiresClarification), ev.DocumentVersion, toMS(ev.EvaluatedAt),
	).Suffix(`ON CONFLICT (audit_id, section_id) DO UPDATE SET auditor_id = excluded.auditor_id,
		result = excluded.result, score = excluded.score, observations = excluded.observations,
		criteria = excluded.criteria, requires_clarification = excluded.requires_clarification,
		document_version = excluded.document_version, evaluated_at_ms = excluded.evaluated_at_ms
		RETURNING id`).ToSql()
	if err != nil {
		return domain.Evaluation{}, err
	}
	if err := s.db.GetContext(ctx, &ev.ID, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Evaluation{}, fmt.Errorf("upsert evaluation: %w", domain.ErrNotFound)
		}
		return domain.Evaluation{}, fmt.Errorf("upsert evaluation: %w", err)
	}
	return ev, nil
}
