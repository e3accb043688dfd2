package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

func pathParam(r *http.Request, name string) (string, error) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", fmt.Errorf("%w: parameter %s: %v", domain.ErrValidation, name, err)
	}
	return v, nil
}

// auditID reads the path parameter and checks the caller may see audits.
func (s *Server) auditID(w http.ResponseWriter, r *http.Request, perm domain.Permission) (string, bool) {
	if err := actorOf(r).Require(perm); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	id, err := pathParam(r, "auditID")
	if err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	return id, true
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := s.auditID(w, r, domain.PermViewAudit)
	if !ok {
		return
	}
	p, err := s.svc.Progress.GetProgress(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type historyEntry struct {
	From          domain.State     `json:"from_state"`
	To            domain.State     `json:"to_state"`
	Kind          domain.CauseKind `json:"kind"`
	ActorID       string           `json:"actor_id"`
	ActorName     string           `json:"actor_name"`
	Justification string           `json:"justification,omitempty"`
	Conditions    []string         `json:"conditions,omitempty"`
	At            time.Time        `json:"at"`
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.auditID(w, r, domain.PermViewAudit)
	if !ok {
		return
	}
	changes, err := s.svc.Workflow.StateHistory(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]historyEntry, 0, len(changes))
	for _, c := range changes {
		out = append(out, historyEntry{
			From: c.From, To: c.To, Kind: c.Kind, ActorID: c.ActorID, ActorName: c.ActorName,
			Justification: c.Justification, Conditions: c.Conditions, At: c.At,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.auditID(w, r, domain.PermViewAudit)
	if !ok {
		return
	}
	pdf, err := s.svc.Reports.AuditReportPDF(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "audit-"+id+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

type transitionRequest struct {
	TargetState   string `json:"target_state"`
	Justification string `json:"justification"`
}

func (s *Server) postTransition(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.svc.Workflow.Transition)
}

func (s *Server) postForceTransition(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.svc.Workflow.ForceTransition)
}

type transitionFunc func(ctx context.Context, auditID, target string, actor domain.Actor, justification string) (domain.TransitionResult, error)

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, err := pathParam(r, "auditID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := fn(r.Context(), id, req.TargetState, actorOf(r), req.Justification)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) postVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := s.auditID(w, r, domain.PermViewAudit)
	if !ok {
		return
	}
	res, err := s.svc.Workflow.VerifyTransitions(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type documentRequest struct {
	SectionID   string `json:"section_id"`
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	StoragePath string `json:"storage_path"`
}

type documentResponse struct {
	ID            string               `json:"id"`
	AuditID       string               `json:"audit_id"`
	SectionID     string               `json:"section_id"`
	Filename      string               `json:"filename"`
	ContentHash   string               `json:"content_hash"`
	Version       int                  `json:"version"`
	AnalysisState domain.AnalysisState `json:"analysis_state"`
	UploadedBy    string               `json:"uploaded_by"`
	UploadedAt    time.Time            `json:"uploaded_at"`
}

func (s *Server) postDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "auditID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.svc.Documents.RegisterDocument(r.Context(), domain.Document{
		AuditID: id, SectionID: req.SectionID, Filename: req.Filename, ContentHash: req.ContentHash,
		SizeBytes: req.SizeBytes, StoragePath: req.StoragePath,
	}, actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentResponse{
		ID: doc.ID, AuditID: doc.AuditID, SectionID: doc.SectionID, Filename: doc.Filename,
		ContentHash: doc.ContentHash, Version: doc.Version, AnalysisState: doc.AnalysisState,
		UploadedBy: doc.UploadedBy, UploadedAt: doc.UploadedAt,
	})
}

type evaluationRequest struct {
	SectionID             string             `json:"section_id"`
	Result                string             `json:"result"`
	Score                 float64            `json:"score"`
	Observations          string             `json:"observations"`
	Criteria              []domain.Criterion `json:"criteria"`
	RequiresClarification bool               `json:"requires_clarification"`
	DocumentVersion       int                `json:"document_version"`
}

type evaluationResponse struct {
	ID                    string                  `json:"id"`
	SectionID             string                  `json:"section_id"`
	Result                domain.EvaluationResult `json:"result"`
	Score                 float64                 `json:"score"`
	RequiresClarification bool                    `json:"requires_clarification"`
	DocumentVersion       int                     `json:"document_version"`
	EvaluatedAt           time.Time               `json:"evaluated_at"`
}

func (s *Server) postEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "auditID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req evaluationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ev, err := s.svc.Documents.RecordEvaluation(r.Context(), domain.Evaluation{
		AuditID: id, SectionID: req.SectionID, Result: domain.EvaluationResult(req.Result), Score: req.Score,
		Observations: req.Observations, Criteria: req.Criteria, RequiresClarification: req.RequiresClarification,
		DocumentVersion: req.DocumentVersion,
	}, actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, evaluationResponse{
		ID: ev.ID, SectionID: ev.SectionID, Result: ev.Result, Score: ev.Score,
		RequiresClarification: ev.RequiresClarification, DocumentVersion: ev.DocumentVersion, EvaluatedAt: ev.EvaluatedAt,
	})
}

func (s *Server) postSweep(w http.ResponseWriter, r *http.Request) {
	if err := actorOf(r).Require(domain.PermRunSweep); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Workflow.RunScheduledSweep(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type scopeFields struct {
	AuditID     *string `json:"audit_id,omitempty"`
	SectionType string  `json:"section_type,omitempty"`
}

func (f scopeFields) scope() ports.RuleScope {
	return ports.RuleScope{AuditID: f.AuditID, SectionType: f.SectionType}
}

type validateRowRequest struct {
	scopeFields
	Row map[string]string `json:"row"`
}

type validateRowResponse struct {
	Result   domain.InventoryResult `json:"result"`
	Warnings []domain.ParseWarning  `json:"warnings,omitempty"`
}

func (s *Server) postValidateRow(w http.ResponseWriter, r *http.Request) {
	if err := actorOf(r).Require(domain.PermValidateInventory); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req validateRowRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, warnings, err := s.svc.Inventory.ValidateRow(r.Context(), req.Row, req.scope())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateRowResponse{Result: res, Warnings: warnings})
}

type validateBatchRequest struct {
	scopeFields
	Rows []map[string]string `json:"rows"`
}

func (s *Server) postValidateBatch(w http.ResponseWriter, r *http.Request) {
	if err := actorOf(r).Require(domain.PermValidateInventory); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req validateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Inventory.ValidateBatch(r.Context(), req.Rows, req.scope())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// thresholdScope binds {sectionType} and the optional audit_id query
// parameter.
func thresholdScope(r *http.Request) (ports.RuleScope, error) {
	sectionType, err := pathParam(r, "sectionType")
	if err != nil {
		return ports.RuleScope{}, err
	}
	var auditID *string
	if err := runtime.BindQueryParameter("form", true, false, "audit_id", r.URL.Query(), &auditID); err != nil {
		return ports.RuleScope{}, fmt.Errorf("%w: parameter audit_id: %v", domain.ErrValidation, err)
	}
	if auditID != nil && *auditID == "" {
		auditID = nil
	}
	return ports.RuleScope{AuditID: auditID, SectionType: sectionType}, nil
}

type thresholdResponse struct {
	ID          string          `json:"id,omitempty"`
	AuditID     *string         `json:"audit_id,omitempty"`
	SectionType string          `json:"section_type"`
	Rules       json.RawMessage `json:"rules"`
	Locked      bool            `json:"locked"`
	Version     int             `json:"version"`
	UpdatedBy   string          `json:"updated_by"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

func toThresholdResponse(c domain.ThresholdConfiguration) thresholdResponse {
	out := thresholdResponse{
		ID: c.ID, AuditID: c.AuditID, SectionType: c.SectionType, Rules: c.Rules,
		Locked: c.Locked, Version: c.Version, UpdatedBy: c.UpdatedBy,
	}
	if !c.UpdatedAt.IsZero() {
		at := c.UpdatedAt
		out.UpdatedAt = &at
	}
	return out
}

func (s *Server) getThresholds(w http.ResponseWriter, r *http.Request) {
	if err := actorOf(r).Require(domain.PermViewAudit); err != nil {
		s.writeError(w, r, err)
		return
	}
	scope, err := thresholdScope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.svc.Thresholds.Get(r.Context(), scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toThresholdResponse(cfg))
}

type thresholdUpdateRequest struct {
	Rules json.RawMessage `json:"rules"`
}

func (s *Server) putThresholds(w http.ResponseWriter, r *http.Request) {
	scope, err := thresholdScope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req thresholdUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.svc.Thresholds.Update(r.Context(), scope, req.Rules, actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toThresholdResponse(cfg))
}

func (s *Server) lockThresholds(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := thresholdScope(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cfg, err := s.svc.Thresholds.SetLocked(r.Context(), scope, locked, actorOf(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toThresholdResponse(cfg))
	}
}

type thresholdHistoryEntry struct {
	Version   int                  `json:"version"`
	Action    string               `json:"action"`
	Author    string               `json:"author"`
	Diff      []domain.FieldChange `json:"diff"`
	Snapshot  json.RawMessage      `json:"snapshot"`
	CreatedAt time.Time            `json:"created_at"`
}

func (s *Server) getThresholdHistory(w http.ResponseWriter, r *http.Request) {
	if err := actorOf(r).Require(domain.PermViewAudit); err != nil {
		s.writeError(w, r, err)
		return
	}
	scope, err := thresholdScope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.svc.Thresholds.History(r.Context(), scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]thresholdHistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, thresholdHistoryEntry{
			Version: e.Version, Action: e.Action, Author: e.Author, Diff: e.Diff,
			Snapshot: e.Snapshot, CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
