// Package report renders the audit status PDF: audit header, section
// progress and the state history.
package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

type AuditReader interface {
	GetAudit(ctx context.Context, auditID string) (domain.Audit, error)
	StateHistory(ctx context.Context, auditID string) ([]domain.StateChange, error)
}

type Service struct {
	audits   AuditReader
	progress ports.Progress
	clock    ports.Clock
}

var _ ports.Reports = (*Service)(nil)

func New(audits AuditReader, progress ports.Progress, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Service{audits: audits, progress: progress, clock: clock}
}

func (s *Service) AuditReportPDF(ctx context.Context, auditID string) ([]byte, error) {
	a, err := s.audits.GetAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	p, err := s.progress.GetProgress(ctx, auditID)
	if err != nil {
		return nil, err
	}
	history, err := s.audits.StateHistory(ctx, auditID)
	if err != nil {
		return nil, err
	}
	pdf := build(a, p, history, s.clock.Now())
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func build(a domain.Audit, p domain.Progress, history []domain.StateChange, now time.Time) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("SAT-Digital audit "+a.ID, true)
	// Core fonts are cp1252; the translator keeps Spanish accents intact.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, "SAT-Digital - Audit status report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, "Generated at: "+fmtTime(&now), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	sectionTitle(pdf, "1. Audit")
	kv(pdf, tr, "Audit ID", a.ID)
	kv(pdf, tr, "Site", a.SiteID)
	kv(pdf, tr, "Provider", a.ProviderID)
	if a.AuditorID != nil {
		kv(pdf, tr, "Auditor", *a.AuditorID)
	}
	kv(pdf, tr, "Period", a.PeriodCode)
	kv(pdf, tr, "State", string(a.State))
	kv(pdf, tr, "State since", fmtTime(&a.StateChangedAt))
	kv(pdf, tr, "Upload opens", fmtTime(a.UploadStartsAt))
	kv(pdf, tr, "Upload deadline", fmtTime(a.UploadDeadline))
	kv(pdf, tr, "Visit date", fmtTime(a.VisitDate))
	pdf.Ln(2)

	sectionTitle(pdf, fmt.Sprintf("2. Progress: %d%% (%s)", p.Percent, p.Status))
	header := []string{"Section", "Obligatory", "Status", "Version", "Compliance"}
	widths := []float64{70, 24, 26, 20, 42}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range header {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(30, 30, 30)
	for _, sp := range p.PerSection {
		name := sp.Name
		if name == "" {
			name = sp.SectionID
		}
		version := "-"
		if sp.ActiveVersion > 0 {
			version = fmt.Sprintf("v%d", sp.ActiveVersion)
		}
		compliance := string(sp.Compliance)
		if sp.RequiresClarification {
			compliance += " *"
		}
		row := []string{tr(name), yesNo(sp.Obligatory), string(sp.Status), version, compliance}
		for i, v := range row {
			pdf.CellFormat(widths[i], 5.5, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, "* clarification requested", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	sectionTitle(pdf, "3. State history")
	if len(history) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(no transitions)", "", "L", false)
	}
	for _, h := range history {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 5, fmt.Sprintf("%s  %s -> %s  [%s]", fmtTime(&h.At), h.From, h.To, h.Kind), "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(40, 40, 40)
		pdf.MultiCell(0, 4.5, tr("by "+h.ActorName), "", "L", false)
		if h.Justification != "" {
			pdf.MultiCell(0, 4.5, tr("justification: "+oneLine(h.Justification)), "", "L", false)
		}
		if len(h.Conditions) > 0 {
			pdf.MultiCell(0, 4.5, "conditions: "+strings.Join(h.Conditions, ", "), "", "L", false)
		}
		pdf.Ln(1)
	}
	return pdf
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 196, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, tr func(string) string, key, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(36, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5.2, tr(oneLine(value)), "", "L", false)
}

func fmtTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func oneLine(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s))
}
