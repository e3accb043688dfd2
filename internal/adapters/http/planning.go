package httpadapter

import (
	"net/http"
	"time"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

type auditResponse struct {
	ID             string       `json:"id"`
	SiteID         string       `json:"site_id"`
	ProviderID     string       `json:"provider_id,omitempty"`
	AuditorID      *string      `json:"auditor_id"`
	PeriodCode     string       `json:"period_code"`
	State          domain.State `json:"state"`
	UploadStartsAt *time.Time   `json:"upload_starts_at,omitempty"`
	UploadDeadline *time.Time   `json:"upload_deadline,omitempty"`
	VisitDate      *time.Time   `json:"visit_date,omitempty"`
	StateChangedAt time.Time    `json:"state_changed_at"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func toAuditResponse(a domain.Audit) auditResponse {
	return auditResponse{
		ID: a.ID, SiteID: a.SiteID, ProviderID: a.ProviderID, AuditorID: a.AuditorID,
		PeriodCode: a.PeriodCode, State: a.State,
		UploadStartsAt: a.UploadStartsAt, UploadDeadline: a.UploadDeadline, VisitDate: a.VisitDate,
		StateChangedAt: a.StateChangedAt, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func toAuditResponses(audits []domain.Audit) []auditResponse {
	out := make([]auditResponse, 0, len(audits))
	for _, a := range audits {
		out = append(out, toAuditResponse(a))
	}
	return out
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "auditID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.svc.Planning.GetAudit(r.Context(), id, actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(a))
}

type assignAuditorRequest struct {
	AuditorID string `json:"auditor_id"`
}

func (s *Server) putAuditor(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "auditID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req assignAuditorRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.svc.Planning.AssignAuditor(r.Context(), id, req.AuditorID, actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(a))
}

func (s *Server) getPeriodAudits(w http.ResponseWriter, r *http.Request) {
	code, err := pathParam(r, "periodCode")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	audits, err := s.svc.Planning.ListPeriod(r.Context(), code, actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(audits))
}

type periodSite struct {
	SiteID     string `json:"site_id"`
	ProviderID string `json:"provider_id"`
	AuditorID  string `json:"auditor_id"`
}

type generateAuditsRequest struct {
	UploadStartsAt *time.Time   `json:"upload_starts_at"`
	UploadDeadline *time.Time   `json:"upload_deadline"`
	VisitDate      *time.Time   `json:"visit_date"`
	Sites          []periodSite `json:"sites"`
}

type generateAuditsResponse struct {
	Created []auditResponse `json:"created"`
	Skipped []string        `json:"skipped"`
}

func (s *Server) postPeriodAudits(w http.ResponseWriter, r *http.Request) {
	code, err := pathParam(r, "periodCode")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req generateAuditsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := ports.AuditPeriod{Code: code, UploadStartsAt: req.UploadStartsAt, UploadDeadline: req.UploadDeadline, VisitDate: req.VisitDate}
	for _, site := range req.Sites {
		p.Sites = append(p.Sites, ports.PeriodSite{SiteID: site.SiteID, ProviderID: site.ProviderID, AuditorID: site.AuditorID})
	}
	res, err := s.svc.Planning.GenerateAudits(r.Context(), p, actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, generateAuditsResponse{Created: toAuditResponses(res.Created), Skipped: res.Skipped})
}
