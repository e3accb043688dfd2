package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "satdigital/internal/adapters/http"
	"satdigital/internal/adapters/sqlite"
	"satdigital/internal/adapters/sqlite/sqlitetest"
	"satdigital/internal/domain"
	"satdigital/internal/metrics"
	"satdigital/internal/ports"
	"satdigital/internal/services/compliance"
	"satdigital/internal/services/documents"
	"satdigital/internal/services/planning"
	"satdigital/internal/services/progress"
	"satdigital/internal/services/report"
	"satdigital/internal/services/rules"
	"satdigital/internal/services/thresholds"
	"satdigital/internal/services/workflow"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type user struct{ id, name, role string }

var (
	admin    = user{"u-admin", "Admin", "admin"}
	general  = user{"u-gen", "Auditora General", "auditor_general"}
	provider = user{"prov-1", "Proveedor Uno", "provider"}
)

type harness struct {
	store *sqlite.Store
	srv   *httptest.Server
	audit domain.Audit
}

func newHarness(t *testing.T, opts ...httpadapter.Option) *harness {
	t.Helper()
	ctx := context.Background()
	store := sqlitetest.Open(t)
	clock := &ports.FixedClock{T: t0}
	quiet := log.New(io.Discard, "", 0)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	prog := progress.New(store)
	engine := workflow.New(store, prog, nil, store, workflow.WithClock(clock), workflow.WithLogger(quiet), workflow.WithMetrics(m))
	thr := thresholds.New(store, store, rules.Default().Rules, clock, quiet)
	srv := httpadapter.New(httpadapter.Services{
		Workflow:   engine,
		Progress:   prog,
		Documents:  documents.New(store, engine, store, clock, quiet),
		Thresholds: thr,
		Inventory:  compliance.NewService(thr, nil, m),
		Reports:    report.New(store, prog, clock),
		Planning:   planning.New(store, nil, store, clock, quiet),
	}, reg, quiet, opts...)

	require.NoError(t, store.UpsertSection(ctx, domain.TechnicalSection{ID: "hw", Name: "Hardware", SectionType: "hardware_software", Obligatory: true}))
	require.NoError(t, store.UpsertSection(ctx, domain.TechnicalSection{ID: "topo", Name: "Topología", Obligatory: true}))
	a, err := store.CreateAudit(ctx, domain.Audit{SiteID: "site-1", ProviderID: "prov-1", PeriodCode: "2026-1", State: domain.StateScheduled, CreatedAt: t0})
	require.NoError(t, err)

	h := &harness{store: store, srv: httptest.NewServer(srv.Routes()), audit: a}
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, u *user, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if u != nil {
		req.Header.Set(httpadapter.HeaderUserID, u.id)
		req.Header.Set(httpadapter.HeaderUserName, u.name)
		req.Header.Set(httpadapter.HeaderUserRole, u.role)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, nil, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	h.do(t, &admin, http.MethodPost, "/audits/"+h.audit.ID+"/transitions/force", map[string]string{"target_state": "uploading", "justification": "apertura"})
	resp, body = h.do(t, nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sat_audit_transitions_total")
}

func TestMissingIdentity(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, nil, http.MethodGet, "/audits/"+h.audit.ID+"/progress", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadDrivesWorkflow(t *testing.T) {
	h := newHarness(t)
	base := "/audits/" + h.audit.ID

	resp, body := h.do(t, &provider, http.MethodPost, base+"/documents", map[string]any{
		"section_id": "hw", "filename": "inventario.xlsx", "content_hash": "abc", "size_bytes": 2048,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var doc struct {
		Version    int    `json:"version"`
		UploadedBy string `json:"uploaded_by"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "prov-1", doc.UploadedBy)

	resp, body = h.do(t, &provider, http.MethodGet, base+"/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p domain.Progress
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, 50, p.Percent)

	resp, body = h.do(t, &provider, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []struct {
		From string `json:"from_state"`
		To   string `json:"to_state"`
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "scheduled", history[0].From)
	assert.Equal(t, "uploading", history[0].To)
	assert.Equal(t, "automatic", history[0].Kind)
}

func TestTransitionErrorMapping(t *testing.T) {
	h := newHarness(t)
	base := "/audits/" + h.audit.ID

	cases := []struct {
		name string
		as   user
		path string
		body map[string]string
		want int
	}{
		{"forbidden", provider, base + "/transitions/force", map[string]string{"target_state": "closed", "justification": "x"}, http.StatusForbidden},
		{"unknown state", admin, base + "/transitions/force", map[string]string{"target_state": "bogus_state", "justification": "x"}, http.StatusBadRequest},
		{"no justification", admin, base + "/transitions/force", map[string]string{"target_state": "closed"}, http.StatusBadRequest},
		{"missing audit", admin, "/audits/nope/transitions/force", map[string]string{"target_state": "closed", "justification": "x"}, http.StatusNotFound},
		{"automatic edge", admin, base + "/transitions", map[string]string{"target_state": "uploading"}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := h.do(t, &tc.as, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.want, resp.StatusCode, string(body))
		})
	}

	resp, body := h.do(t, &admin, http.MethodPost, base+"/transitions/force", map[string]string{"target_state": "cancelled", "justification": "sede cerrada"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"applied":true,"new_state":"cancelled"}`, string(body))
}

func TestVerifyAndSweep(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, &provider, http.MethodPost, "/audits/"+h.audit.ID+"/transitions/verify", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"applied":false`)

	resp, _ = h.do(t, &provider, http.MethodPost, "/sweep", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = h.do(t, &admin, http.MethodPost, "/sweep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"checked":1,"transitioned":0,"failed":0}`, string(body))
}

func TestThresholdLockingOverHTTP(t *testing.T) {
	h := newHarness(t)
	raw, err := rules.Default().Rules.JSON()
	require.NoError(t, err)
	path := "/thresholds/hardware_software?audit_id=" + h.audit.ID

	resp, body := h.do(t, &general, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"version":0`)

	resp, body = h.do(t, &general, http.MethodPut, path, map[string]json.RawMessage{"rules": raw})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = h.do(t, &general, http.MethodPost, "/thresholds/hardware_software/lock?audit_id="+h.audit.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = h.do(t, &admin, http.MethodPost, "/thresholds/hardware_software/lock?audit_id="+h.audit.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"locked":true`)

	resp, _ = h.do(t, &general, http.MethodPut, path, map[string]json.RawMessage{"rules": raw})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)

	resp, _ = h.do(t, &general, http.MethodPut, "/thresholds/hardware_software", map[string]json.RawMessage{"rules": json.RawMessage(`{"processor":"fast"}`)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, &general, http.MethodGet, "/thresholds/hardware_software/history?audit_id="+h.audit.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "update", entries[0].Action)
	assert.Equal(t, "lock", entries[1].Action)
}

func TestInventoryValidation(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, &provider, http.MethodPost, "/inventory/validate-batch", map[string]any{
		"rows": []map[string]string{
			{"procesador": "Intel Core i5-10400 @ 2.90GHz", "ram": "16 GB", "disco": "SSD 480GB", "sistema operativo": "Windows 10 Pro"},
			{"procesador": "Intel Celeron N4020 @ 1.10GHz", "ram": "4 GB"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res domain.InventoryBatchResult
	require.NoError(t, json.Unmarshal(body, &res))
	require.Len(t, res.Results, 2)
	assert.False(t, res.Results[1].Compliant)
	assert.NotEmpty(t, res.Results[1].Reasons)
}

func TestReportPDF(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, &provider, http.MethodGet, "/audits/"+h.audit.ID+"/report.pdf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF-")))
}

func TestPlanningOverHTTP(t *testing.T) {
	h := newHarness(t)
	deadline := t0.Add(14 * 24 * time.Hour)
	body := map[string]any{
		"upload_deadline": deadline,
		"sites": []map[string]string{
			{"site_id": "cordoba", "provider_id": "prov-1"},
			{"site_id": "site-1", "provider_id": "prov-1"},
		},
	}

	resp, _ := h.do(t, &general, http.MethodPost, "/periods/2026-1/audits", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out := h.do(t, &admin, http.MethodPost, "/periods/2026-1/audits", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(out))
	var generated struct {
		Created []struct {
			ID     string `json:"id"`
			SiteID string `json:"site_id"`
			State  string `json:"state"`
		} `json:"created"`
		Skipped []string `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(out, &generated))
	require.Len(t, generated.Created, 1)
	assert.Equal(t, "cordoba", generated.Created[0].SiteID)
	assert.Equal(t, "scheduled", generated.Created[0].State)
	assert.Equal(t, []string{"site-1"}, generated.Skipped, "the harness audit already covers site-1")

	resp, out = h.do(t, &provider, http.MethodGet, "/periods/2026-1/audits", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(out, &listed))
	assert.Len(t, listed, 2)

	id := generated.Created[0].ID
	resp, _ = h.do(t, &provider, http.MethodPut, "/audits/"+id+"/auditor", map[string]string{"auditor_id": "aud-1"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out = h.do(t, &general, http.MethodPut, "/audits/"+id+"/auditor", map[string]string{"auditor_id": "aud-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(out))

	resp, out = h.do(t, &provider, http.MethodGet, "/audits/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "aud-1", got["auditor_id"])
	assert.Equal(t, "2026-1", got["period_code"])

	resp, _ = h.do(t, &provider, http.MethodGet, "/audits/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestBodyLimit(t *testing.T) {
	h := newHarness(t, httpadapter.WithMaxBodyBytes(256))

	rows := make([]map[string]string, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, map[string]string{"Procesador": "Intel Core i5-8500", "RAM": "8 GB"})
	}
	resp, out := h.do(t, &provider, http.MethodPost, "/inventory/validate-batch", map[string]any{"rows": rows})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, string(out))

	resp, _ = h.do(t, &provider, http.MethodPost, "/inventory/validate", map[string]any{"row": rows[0]})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
