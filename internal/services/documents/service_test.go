package documents_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satdigital/internal/adapters/sqlite"
	"satdigital/internal/adapters/sqlite/sqlitetest"
	"satdigital/internal/domain"
	"satdigital/internal/ports"
	"satdigital/internal/services/documents"
	"satdigital/internal/services/progress"
	"satdigital/internal/services/workflow"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var (
	provider = domain.NewActor("prov-1", "Proveedor Uno", domain.RoleProvider)
	auditor  = domain.NewActor("aud-1", "Auditor Uno", domain.RoleAuditor)
)

func setup(t *testing.T, state domain.State) (*sqlite.Store, *documents.Service, domain.Audit) {
	t.Helper()
	ctx := context.Background()
	store := sqlitetest.Open(t)
	clock := &ports.FixedClock{T: t0}
	quiet := log.New(io.Discard, "", 0)
	engine := workflow.New(store, progress.New(store), nil, store, workflow.WithClock(clock), workflow.WithLogger(quiet))
	svc := documents.New(store, engine, store, clock, quiet)

	require.NoError(t, store.UpsertSection(ctx, domain.TechnicalSection{ID: "hw", Name: "Hardware", Obligatory: true, AllowedFormats: []string{"xlsx", "csv"}}))
	require.NoError(t, store.UpsertSection(ctx, domain.TechnicalSection{ID: "topo", Name: "Topología", Obligatory: true}))

	aud := "aud-1"
	a, err := store.CreateAudit(ctx, domain.Audit{SiteID: "site-1", ProviderID: "prov-1", AuditorID: &aud, PeriodCode: "2026-1", State: state, CreatedAt: t0})
	require.NoError(t, err)
	return store, svc, a
}

func TestFirstUploadStartsUploading(t *testing.T) {
	ctx := context.Background()
	store, svc, a := setup(t, domain.StateScheduled)

	doc, err := svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "inventario.xlsx", ContentHash: "h1"}, provider)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "prov-1", doc.UploadedBy)
	assert.Equal(t, t0, doc.UploadedAt)

	got, err := store.GetAudit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateUploading, got.State)
}

func TestReuploadDedupesByHash(t *testing.T) {
	ctx := context.Background()
	store, svc, a := setup(t, domain.StateUploading)

	first, err := svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "a.xlsx", ContentHash: "h1"}, provider)
	require.NoError(t, err)
	again, err := svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "a-copy.xlsx", ContentHash: "h1"}, provider)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	second, err := svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "b.xlsx", ContentHash: "h2"}, provider)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	active, err := store.ActiveDocuments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	_, err = svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "a-again.xlsx", ContentHash: "h1"}, provider)
	assert.ErrorIs(t, err, domain.ErrDocumentVersionMismatch, "content of a superseded version")
	active, err = store.ActiveDocuments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestRegisterDocumentValidation(t *testing.T) {
	ctx := context.Background()
	_, svc, a := setup(t, domain.StateUploading)

	_, err := svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "a.xlsx", ContentHash: "h"}, auditor)
	assert.True(t, domain.IsForbidden(err))

	_, err = svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "a.pdf", ContentHash: "h"}, provider)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "nope", Filename: "a.pdf", ContentHash: "h"}, provider)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.RegisterDocument(ctx, domain.Document{AuditID: "missing", SectionID: "hw", Filename: "a.csv", ContentHash: "h"}, provider)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "a.csv"}, provider)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.RegisterDocument(ctx, domain.Document{AuditID: a.ID, SectionID: "topo", Filename: "diagram.vsdx", ContentHash: "h"}, provider)
	assert.NoError(t, err, "sections without formats accept any file")
}

func TestRecordEvaluationTargetsActiveVersion(t *testing.T) {
	ctx := context.Background()
	store, svc, a := setup(t, domain.StateUnderReview)

	_, err := svc.RecordEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: "hw", Result: domain.ResultCompliant}, auditor)
	assert.ErrorIs(t, err, domain.ErrDocumentVersionMismatch, "no document yet")

	_, err = store.SaveDocumentVersion(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "a.xlsx", ContentHash: "h1", UploadedAt: t0})
	require.NoError(t, err)
	_, err = store.SaveDocumentVersion(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "b.xlsx", ContentHash: "h2", UploadedAt: t0})
	require.NoError(t, err)

	_, err = svc.RecordEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: "hw", Result: domain.ResultCompliant, DocumentVersion: 1}, auditor)
	assert.ErrorIs(t, err, domain.ErrDocumentVersionMismatch)

	ev, err := svc.RecordEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: "hw", Result: domain.ResultCompliant}, auditor)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.DocumentVersion)
	assert.Equal(t, "aud-1", ev.AuditorID)

	_, err = svc.RecordEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: "hw", Result: "great"}, auditor)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.RecordEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: "hw", Result: domain.ResultCompliant},
		domain.NewActor("aud-2", "Otro", domain.RoleAuditor))
	assert.True(t, domain.IsForbidden(err))
}

func TestTerminalAuditsRejectEvaluations(t *testing.T) {
	ctx := context.Background()
	for _, state := range []domain.State{domain.StateClosed, domain.StateCancelled, domain.StateRejected} {
		t.Run(string(state), func(t *testing.T) {
			store, svc, a := setup(t, state)
			_, err := store.SaveDocumentVersion(ctx, domain.Document{AuditID: a.ID, SectionID: "hw", Filename: "a.xlsx", ContentHash: "h1", UploadedAt: t0})
			require.NoError(t, err)

			_, err = svc.RecordEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: "hw", Result: domain.ResultCompliant}, auditor)
			assert.ErrorIs(t, err, domain.ErrValidation)

			evs, err := store.ListEvaluations(ctx, a.ID)
			require.NoError(t, err)
			assert.Empty(t, evs)
		})
	}
}

func TestLastEvaluationCompletesReview(t *testing.T) {
	ctx := context.Background()
	store, svc, a := setup(t, domain.StateUnderReview)
	for _, sec := range []string{"hw", "topo"} {
		_, err := store.SaveDocumentVersion(ctx, domain.Document{AuditID: a.ID, SectionID: sec, Filename: sec + ".csv", ContentHash: sec, UploadedAt: t0})
		require.NoError(t, err)
	}

	_, err := svc.RecordEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: "hw", Result: domain.ResultCompliant}, auditor)
	require.NoError(t, err)
	got, err := store.GetAudit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateUnderReview, got.State)

	_, err = svc.RecordEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: "topo", Result: domain.ResultNotApplicable}, auditor)
	require.NoError(t, err)
	got, err = store.GetAudit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEvaluated, got.State)

	trail, err := store.TrailFor(ctx, "audit", a.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "audit.transition.automatic", trail[0].Action)
}
