package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"satdigital/internal/domain"
)

type sectionRow struct {
	ID             string   `db:"id"`
	Name           string   `db:"name"`
	SectionType    string   `db:"section_type"`
	Order          int      `db:"sort_order"`
	Obligatory     bool     `db:"obligatory"`
	AllowedFormats []string `db:"allowed_formats"`
}

func (db *DB) UpsertSection(ctx context.Context, s domain.TechnicalSection) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO technical_sections (id, name, section_type, sort_order, obligatory, allowed_formats)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, section_type = EXCLUDED.section_type,
            sort_order = EXCLUDED.sort_order, obligatory = EXCLUDED.obligatory,
            allowed_formats = EXCLUDED.allowed_formats
    `, s.ID, s.Name, s.SectionType, s.Order, s.Obligatory, nonNil(s.AllowedFormats))
	if err != nil {
		return fmt.Errorf("upsert section: %w", err)
	}
	return nil
}

func (db *DB) ListSections(ctx context.Context) ([]domain.TechnicalSection, error) {
	rows, _ := db.Pool.Query(ctx, `
        SELECT id, name, section_type, sort_order, obligatory, allowed_formats
        FROM technical_sections ORDER BY sort_order, id
    `)
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[sectionRow])
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	out := make([]domain.TechnicalSection, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.TechnicalSection{
			ID: r.ID, Name: r.Name, SectionType: r.SectionType, Order: r.Order,
			Obligatory: r.Obligatory, AllowedFormats: r.AllowedFormats,
		})
	}
	return out, nil
}

type documentRow struct {
	ID            string    `db:"id"`
	AuditID       string    `db:"audit_id"`
	SectionID     string    `db:"section_id"`
	UploadedBy    string    `db:"uploaded_by"`
	Filename      string    `db:"filename"`
	ContentHash   string    `db:"content_hash"`
	SizeBytes     int64     `db:"size_bytes"`
	StoragePath   string    `db:"storage_path"`
	Version       int       `db:"version"`
	Superseded    bool      `db:"superseded"`
	AnalysisState string    `db:"analysis_state"`
	UploadedAt    time.Time `db:"uploaded_at"`
}

const documentSelect = `
    SELECT id, audit_id, section_id, uploaded_by, filename, content_hash, size_bytes,
           storage_path, version, superseded, analysis_state, uploaded_at
    FROM documents`

func (db *DB) queryDocuments(ctx context.Context, where string, args ...any) ([]domain.Document, error) {
	rows, _ := db.Pool.Query(ctx, documentSelect+` WHERE `+where+` ORDER BY section_id, version`, args...)
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[documentRow])
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	out := make([]domain.Document, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.Document{
			ID: r.ID, AuditID: r.AuditID, SectionID: r.SectionID, UploadedBy: r.UploadedBy,
			Filename: r.Filename, ContentHash: r.ContentHash, SizeBytes: r.SizeBytes,
			StoragePath: r.StoragePath, Version: r.Version, Superseded: r.Superseded,
			AnalysisState: domain.AnalysisState(r.AnalysisState), UploadedAt: r.UploadedAt.UTC(),
		})
	}
	return out, nil
}

func (db *DB) ActiveDocuments(ctx context.Context, auditID string) ([]domain.Document, error) {
	return db.queryDocuments(ctx, `audit_id = $1 AND NOT superseded`, auditID)
}

func (db *DB) FindDocumentByHash(ctx context.Context, auditID, sectionID, hash string) (domain.Document, bool, error) {
	docs, err := db.queryDocuments(ctx, `audit_id = $1 AND section_id = $2 AND content_hash = $3`, auditID, sectionID, hash)
	if err != nil || len(docs) == 0 {
		return domain.Document{}, false, err
	}
	return docs[0], true, nil
}

// SaveDocumentVersion locks the audit row so concurrent uploads to the same
// audit take consecutive versions.
func (db *DB) SaveDocumentVersion(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.AnalysisState == "" {
		doc.AnalysisState = domain.AnalysisPending
	}
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM audits WHERE id = $1 FOR UPDATE`, doc.AuditID).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("audit %s: %w", doc.AuditID, domain.ErrNotFound)
			}
			return err
		}
		if err := tx.QueryRow(ctx, `
            SELECT COALESCE(MAX(version), 0) + 1 FROM documents WHERE audit_id = $1 AND section_id = $2
        `, doc.AuditID, doc.SectionID).Scan(&doc.Version); err != nil {
			return fmt.Errorf("next document version: %w", err)
		}
		if _, err := tx.Exec(ctx, `
            UPDATE documents SET superseded = true WHERE audit_id = $1 AND section_id = $2 AND NOT superseded
        `, doc.AuditID, doc.SectionID); err != nil {
			return fmt.Errorf("supersede documents: %w", err)
		}
		_, err := tx.Exec(ctx, `
            INSERT INTO documents (id, audit_id, section_id, uploaded_by, filename, content_hash,
                                   size_bytes, storage_path, version, superseded, analysis_state, uploaded_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, $11)
        `, doc.ID, doc.AuditID, doc.SectionID, doc.UploadedBy, doc.Filename, doc.ContentHash,
			doc.SizeBytes, doc.StoragePath, doc.Version, string(doc.AnalysisState), doc.UploadedAt)
		if err != nil {
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
	ID                    string             `db:"id"`
	AuditID               string             `db:"audit_id"`
	SectionID             string             `db:"section_id"`
	AuditorID             string             `db:"auditor_id"`
	Result                string             `db:"result"`
	Score                 float64            `db:"score"`
	Observations          string             `db:"observations"`
	Criteria              []domain.Criterion `db:"criteria"`
	RequiresClarification bool               `db:"requires_clarification"`
	DocumentVersion       int                `db:"document_version"`
	EvaluatedAt           time.Time          `db:"evaluated_at"`
}

func (db *DB) ListEvaluations(ctx context.Context, auditID string) ([]domain.Evaluation, error) {
	rows, _ := db.Pool.Query(ctx, `
        SELECT id, audit_id, section_id, auditor_id, result, score, observations, criteria,
               requires_clarification, document_version, evaluated_at
        FROM evaluations WHERE audit_id = $1 ORDER BY section_id
    `, auditID)
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[evaluationRow])
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	out := make([]domain.Evaluation, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.Evaluation{
			ID: r.ID, AuditID: r.AuditID, SectionID: r.SectionID, AuditorID: r.AuditorID,
			Result: domain.EvaluationResult(r.Result), Score: r.Score, Observations: r.Observations,
			Criteria: r.Criteria, RequiresClarification: r.RequiresClarification,
			DocumentVersion: r.DocumentVersion, EvaluatedAt: r.EvaluatedAt.UTC(),
		})
	}
	return out, nil
}

func (db *DB) UpsertEvaluation(ctx context.Context, ev domain.Evaluation) (domain.Evaluation, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO evaluations (id, audit_id, section_id, auditor_id, result, score, observations,
                                 criteria, requires_clarification, document_version, evaluated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (audit_id, section_id) DO UPDATE SET auditor_id = EXCLUDED.auditor_id,
            result = EXCLUDED.result, score = EXCLUDED.score, observations = EXCLUDED.observations,
            criteria = EXCLUDED.criteria, requires_clarification = EXCLUDED.requires_clarification,
            document_version = EXCLUDED.document_version, evaluated_at = EXCLUDED.evaluated_at
        RETURNING id
    `, ev.ID, ev.AuditID, ev.SectionID, ev.AuditorID, string(ev.Result), ev.Score, ev.Observations,
		nonNil(ev.Criteria), ev.RequiresClarification, ev.DocumentVersion, ev.EvaluatedAt).Scan(&ev.ID)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("upsert evaluation: %w", err)
	}
	return ev, nil
}
