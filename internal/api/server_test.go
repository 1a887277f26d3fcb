package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lachiem1/cashflow/internal/app"
	"github.com/lachiem1/cashflow/internal/ledger"
	"github.com/lachiem1/cashflow/internal/sankey"
	"github.com/lachiem1/cashflow/internal/settings"
	"github.com/lachiem1/cashflow/internal/storage"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	return newTestServerWithStore(t, &settings.MemoryStore{}, zerolog.Nop(), opts...)
}

func newTestServerWithStore(t *testing.T, store settings.Store, log zerolog.Logger, opts ...Option) *Server {
	t.Helper()
	session, err := app.NewSession(context.Background(), []ledger.Transaction{
		{ID: "1", Category: `Income\\Salary`, Amount: 3000},
		{ID: "2", Category: `Living\\Rent`, Amount: -1200},
		{ID: "3", Category: `Transport\\Fuel`, Amount: -92.65},
	}, app.Options{Store: store})
	if err != nil {
		t.Fatalf("NewSession() unexpected error: %v", err)
	}
	return NewServer(session, log, opts...)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeChart(t *testing.T, rr *httptest.ResponseRecorder) app.Chart {
	t.Helper()
	var chart app.Chart
	if err := json.NewDecoder(rr.Body).Decode(&chart); err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	return chart
}

func id(path string) string {
	return strconv.FormatInt(ledger.PathID(path), 10)
}

func TestHealth(t *testing.T) {
	rr := do(t, newTestServer(t), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestGetChart(t *testing.T) {
	rr := do(t, newTestServer(t), http.MethodGet, "/api/chart", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	chart := decodeChart(t, rr)
	if len(chart.Edges) != 6 {
		t.Fatalf("len(Edges) = %d, want 6", len(chart.Edges))
	}
	if chart.Edges[0].To != "1" || chart.Edges[0].Custom.Category == nil {
		t.Fatalf("first edge = %+v, want inflow into the main node", chart.Edges[0])
	}
}

func TestRemoveCategory(t *testing.T) {
	s := newTestServer(t)

	rr := do(t, s, http.MethodPost, "/api/categories/"+id("Living")+"/remove", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var ev sankey.CategoryRemoved
	if err := json.NewDecoder(rr.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ev.ChildCategoryIDs) != 2 {
		t.Fatalf("ChildCategoryIDs = %v, want 2 ids", ev.ChildCategoryIDs)
	}

	if rr := do(t, s, http.MethodPost, "/api/categories/1/remove", ""); rr.Code != http.StatusConflict {
		t.Fatalf("remove main status = %d, want 409", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/api/categories/999/remove", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("remove unknown status = %d, want 404", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/api/categories/abc/remove", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("non numeric id status = %d, want 404 from the router", rr.Code)
	}
}

func TestUpdateCategoryAndValidation(t *testing.T) {
	s := newTestServer(t)
	rent := id(`Living\\Rent`)

	rr := do(t, s, http.MethodPut, "/api/categories/"+rent, `{"budget": 1000}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	chart := decodeChart(t, rr)
	if len(chart.Warnings[rent]) != 1 {
		t.Fatalf("warnings = %v, want one for rent", chart.Warnings)
	}

	rr = do(t, s, http.MethodGet, "/api/categories/"+rent+"/validation", "")
	var body struct {
		Valid    bool     `json:"valid"`
		Messages []string `json:"messages"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Valid || len(body.Messages) != 1 {
		t.Fatalf("validation = %+v, want invalid", body)
	}

	rr = do(t, s, http.MethodPut, "/api/categories/"+rent, `{"active": false, "clearBudget": true}`)
	chart = decodeChart(t, rr)
	for _, e := range chart.Edges {
		if e.To == rent {
			t.Fatal("inactive rent still has an edge")
		}
	}

	if rr := do(t, s, http.MethodPut, "/api/categories/"+rent, `{`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d, want 400", rr.Code)
	}
	if rr := do(t, s, http.MethodPut, "/api/categories/5", `{"active": true}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown category status = %d, want 404", rr.Code)
	}
}

func TestUpdateSettingsAndReset(t *testing.T) {
	s := newTestServer(t)

	rr := do(t, s, http.MethodPut, "/api/settings", `{"threshold": 100, "sortKey": "amount"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	chart := decodeChart(t, rr)
	if chart.Threshold != 100 || chart.SortKey != settings.SortByAmount {
		t.Fatalf("chart = threshold %v sort %q", chart.Threshold, chart.SortKey)
	}
	if rr := do(t, s, http.MethodPut, "/api/settings", `{"sortKey": "size"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad sort key status = %d, want 400", rr.Code)
	}

	chart = decodeChart(t, do(t, s, http.MethodPost, "/api/reset", ""))
	if chart.Threshold != 0 {
		t.Fatalf("after reset threshold = %v, want 0", chart.Threshold)
	}
}

func TestExportSankeymatic(t *testing.T) {
	rr := do(t, newTestServer(t), http.MethodGet, "/api/export/sankeymatic", "")
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), "Living [1200.00] Rent") {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestCategoriesList(t *testing.T) {
	rr := do(t, newTestServer(t), http.MethodGet, "/api/categories", "")
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 6 {
		t.Fatalf("count = %d, want 6", body.Count)
	}
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh() error {
	f.calls++
	return f.err
}

type fakeImports []storage.ImportState

func (f fakeImports) List(context.Context) ([]storage.ImportState, error) {
	return f, nil
}

func TestImports(t *testing.T) {
	if rr := do(t, newTestServer(t), http.MethodPost, "/api/imports/refresh", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("refresh without poller status = %d, want 404", rr.Code)
	}

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	refresher := &fakeRefresher{}
	s := newTestServer(t, WithRefresher(refresher), WithImportStates(fakeImports{{Source: "up", LastSuccess: &at, LastCount: 12}}))

	if rr := do(t, s, http.MethodPost, "/api/imports/refresh", ""); rr.Code != http.StatusAccepted || refresher.calls != 1 {
		t.Fatalf("refresh status = %d calls = %d", rr.Code, refresher.calls)
	}
	refresher.err = errors.New("poller is not running")
	if rr := do(t, s, http.MethodPost, "/api/imports/refresh", ""); rr.Code != http.StatusConflict {
		t.Fatalf("refresh error status = %d, want 409", rr.Code)
	}

	rr := do(t, s, http.MethodGet, "/api/imports", "")
	var body struct {
		Imports []storage.ImportState `json:"imports"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Imports) != 1 || body.Imports[0].LastCount != 12 {
		t.Fatalf("imports = %+v", body.Imports)
	}
}

func TestCORSPreflight(t *testing.T) {
	rr := do(t, newTestServer(t), http.MethodOptions, "/api/chart", "")
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight status = %d headers = %v", rr.Code, rr.Header())
	}
}

func TestCORSAllowsEveryRegisteredMethod(t *testing.T) {
	s := newTestServer(t)
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(http.MethodOptions, "/api/warning", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", method)
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("preflight %s status = %d, want 204", method, rr.Code)
		}
		allowed := strings.Split(rr.Header().Get("Access-Control-Allow-Methods"), ", ")
		found := false
		for _, m := range allowed {
			if m == method {
				found = true
			}
		}
		if !found {
			t.Fatalf("Access-Control-Allow-Methods = %v, missing %s", allowed, method)
		}
	}
}

func TestSaveFailureKeepsChangeAndWarns(t *testing.T) {
	store := &settings.MemoryStore{}
	s := newTestServerWithStore(t, store, zerolog.Nop())
	store.Err = errors.New("disk full")

	rr := do(t, s, http.MethodPut, "/api/settings", `{"threshold": 100}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	chart := decodeChart(t, rr)
	if chart.Threshold != 100 {
		t.Fatalf("threshold = %v, want 100", chart.Threshold)
	}
	if !strings.Contains(chart.Warning, "disk full") {
		t.Fatalf("warning = %q, want the save failure", chart.Warning)
	}

	if rr := do(t, s, http.MethodDelete, "/api/warning", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("dismiss status = %d, want 204", rr.Code)
	}
	if chart := decodeChart(t, do(t, s, http.MethodGet, "/api/chart", "")); chart.Warning != "" {
		t.Fatalf("warning after dismiss = %q", chart.Warning)
	}
}

func TestRequestLoggerCarriesRoute(t *testing.T) {
	buf := &bytes.Buffer{}
	refresher := &fakeRefresher{err: errors.New("import already running")}
	s := newTestServerWithStore(t, &settings.MemoryStore{}, zerolog.New(buf), WithRefresher(refresher))

	if rr := do(t, s, http.MethodPost, "/api/imports/refresh", ""); rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	var handlerLine string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "import refresh rejected") {
			handlerLine = line
		}
	}
	if handlerLine == "" {
		t.Fatalf("log = %s, want the handler's warning", buf.String())
	}
	if !strings.Contains(handlerLine, `"method":"POST"`) || !strings.Contains(handlerLine, `"path":"/api/imports/refresh"`) {
		t.Fatalf("handler log = %s, want method and path fields", handlerLine)
	}
}
