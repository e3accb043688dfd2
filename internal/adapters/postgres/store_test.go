package postgres_test

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satdigital/internal/adapters/postgres"
	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// openDB connects to TEST_DATABASE_URL and migrates it. Tests share the
// database, so every row they write uses fresh ids.
func openDB(t *testing.T) *postgres.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := postgres.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func newAudit(t *testing.T, db *postgres.DB) domain.Audit {
	t.Helper()
	a, err := db.CreateAudit(context.Background(), domain.Audit{SiteID: "site-" + uuid.NewString()[:8], PeriodCode: "2026-1", CreatedAt: t0})
	require.NoError(t, err)
	return a
}

func TestAuditCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	a := newAudit(t, db)
	assert.Equal(t, domain.StateScheduled, a.State)
	assert.Equal(t, t0, a.StateChangedAt)

	change := domain.NewStateChange(a.ID, domain.StateScheduled, domain.StateUploading, domain.Automatic{ConditionsChecked: []string{"first_document"}})
	change.At = t0.Add(time.Hour)
	applied, err := db.CompareAndSwapState(ctx, a.ID, domain.StateScheduled, domain.StateUploading, change)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = db.CompareAndSwapState(ctx, a.ID, domain.StateScheduled, domain.StateCancelled, change)
	require.NoError(t, err)
	assert.False(t, applied)

	history, err := db.StateHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"first_document"}, history[0].Conditions)
	assert.Equal(t, t0.Add(time.Hour), history[0].At)

	ids, err := db.ListAuditIDsByState(ctx, []domain.State{domain.StateUploading})
	require.NoError(t, err)
	assert.Contains(t, ids, a.ID)

	_, err = db.GetAudit(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentSwapsApplyOnce(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	a := newAudit(t, db)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			change := domain.NewStateChange(a.ID, domain.StateScheduled, domain.StateUploading, domain.Automatic{})
			change.At = t0
			ok, err := db.CompareAndSwapState(ctx, a.ID, domain.StateScheduled, domain.StateUploading, change)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)

	history, err := db.StateHistory(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestDocumentsAndEvaluations(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	a := newAudit(t, db)
	section := "hw-" + uuid.NewString()[:8]
	require.NoError(t, db.UpsertSection(ctx, domain.TechnicalSection{ID: section, Name: "Hardware", SectionType: "hardware_software", Obligatory: true, AllowedFormats: []string{"xlsx"}}))

	first, err := db.SaveDocumentVersion(ctx, domain.Document{AuditID: a.ID, SectionID: section, UploadedBy: "p1", Filename: "a.xlsx", ContentHash: "aaa", UploadedAt: t0})
	require.NoError(t, err)
	second, err := db.SaveDocumentVersion(ctx, domain.Document{AuditID: a.ID, SectionID: section, UploadedBy: "p1", Filename: "b.xlsx", ContentHash: "bbb", UploadedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)

	active, err := db.ActiveDocuments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	old, found, err := db.FindDocumentByHash(ctx, a.ID, section, "aaa")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, old.Superseded)

	ev, err := db.UpsertEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: section, AuditorID: "aud", Result: domain.ResultNonCompliant, DocumentVersion: 2, EvaluatedAt: t0})
	require.NoError(t, err)
	again, err := db.UpsertEvaluation(ctx, domain.Evaluation{AuditID: a.ID, SectionID: section, AuditorID: "aud", Result: domain.ResultCompliant, DocumentVersion: 2, EvaluatedAt: t0,
		Criteria: []domain.Criterion{{Name: "ram", Passed: true}}})
	require.NoError(t, err)
	assert.Equal(t, ev.ID, again.ID)

	evs, err := db.ListEvaluations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.ResultCompliant, evs[0].Result)
	assert.Equal(t, []domain.Criterion{{Name: "ram", Passed: true}}, evs[0].Criteria)
}

func put(cfg domain.ThresholdConfiguration, diff ...domain.FieldChange) ports.ThresholdChange {
	return func(domain.ThresholdConfiguration, bool) (domain.ThresholdConfiguration, domain.ThresholdHistoryEntry, error) {
		return cfg, domain.ThresholdHistoryEntry{ID: uuid.NewString(), Version: cfg.Version, Snapshot: cfg.Rules, Diff: diff, Author: "admin", Action: "update", CreatedAt: t0}, nil
	}
}

// bump writes the next version of whatever the scope holds.
func bump(cur domain.ThresholdConfiguration, found bool) (domain.ThresholdConfiguration, domain.ThresholdHistoryEntry, error) {
	if !found {
		cur = domain.ThresholdConfiguration{ID: uuid.NewString(), SectionType: cur.SectionType, Rules: json.RawMessage(`{}`), UpdatedBy: "admin", UpdatedAt: t0}
	}
	cur.Version++
	return cur, domain.ThresholdHistoryEntry{ID: uuid.NewString(), Version: cur.Version, Snapshot: cur.Rules, Author: "admin", Action: "update", CreatedAt: t0}, nil
}

func TestConcurrentThresholdWritersSerialize(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	sectionType := "type-" + uuid.NewString()[:8]

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.UpdateThresholdConfig(ctx, nil, sectionType, func(cur domain.ThresholdConfiguration, found bool) (domain.ThresholdConfiguration, domain.ThresholdHistoryEntry, error) {
				cur.SectionType = sectionType
				return bump(cur, found)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cfg, found, err := db.GetThresholdConfig(ctx, nil, sectionType)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, writers, cfg.Version)
	history, err := db.ThresholdHistory(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Len(t, history, writers)
}

func TestThresholdScopesAndTrail(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	a := newAudit(t, db)
	sectionType := "type-" + uuid.NewString()[:8]

	global := domain.ThresholdConfiguration{ID: uuid.NewString(), SectionType: sectionType, Rules: json.RawMessage(`{"version":"1"}`), Version: 1, UpdatedBy: "admin", UpdatedAt: t0}
	_, err := db.UpdateThresholdConfig(ctx, nil, sectionType, put(global))
	require.NoError(t, err)
	scoped := domain.ThresholdConfiguration{ID: uuid.NewString(), AuditID: &a.ID, SectionType: sectionType, Rules: json.RawMessage(`{"version":"2"}`), Version: 1, UpdatedBy: "admin", UpdatedAt: t0}
	_, err = db.UpdateThresholdConfig(ctx, &a.ID, sectionType, put(scoped, domain.FieldChange{Path: "/version", After: json.RawMessage(`"2"`)}))
	require.NoError(t, err)

	got, found, err := db.GetThresholdConfig(ctx, nil, sectionType)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, global.ID, got.ID)
	assert.JSONEq(t, `{"version":"1"}`, string(got.Rules))

	got, found, err = db.GetThresholdConfig(ctx, &a.ID, sectionType)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, scoped.ID, got.ID)

	history, err := db.ThresholdHistory(ctx, scoped.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "/version", history[0].Diff[0].Path)

	require.NoError(t, db.RecordTrail(ctx, domain.TrailEntry{
		ActorID: "system", ActorName: domain.SystemActorName, Action: "audit.transition.automatic",
		EntityType: "audit", EntityID: a.ID, After: map[string]any{"state": "uploading"}, At: t0,
	}))
	entries, err := db.TrailFor(ctx, "audit", a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Before)
	assert.Equal(t, "uploading", entries[0].After["state"])
}

func TestCreateAuditsSkipsTakenSites(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	period := "p-" + uuid.NewString()[:8]
	taken, err := db.CreateAudit(ctx, domain.Audit{SiteID: "north", PeriodCode: period, CreatedAt: t0})
	require.NoError(t, err)

	created, err := db.CreateAudits(ctx, []domain.Audit{
		{SiteID: "north", PeriodCode: period, State: domain.StateScheduled, CreatedAt: t0},
		{SiteID: "south", PeriodCode: period, State: domain.StateScheduled, CreatedAt: t0},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "south", created[0].SiteID)

	listed, err := db.ListAuditsByPeriod(ctx, period)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, taken.ID, listed[0].ID)

	auditor := "aud-" + uuid.NewString()[:8]
	a, err := db.SetAuditor(ctx, created[0].ID, &auditor, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, a.AuditorID)
	assert.Equal(t, auditor, *a.AuditorID)

	a, err = db.SetAuditor(ctx, created[0].ID, nil, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, a.AuditorID)

	_, err = db.SetAuditor(ctx, uuid.NewString(), &auditor, t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
