package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/variant-matrix/internal/gate"
	"github.com/eugenenazirov/variant-matrix/internal/properties"
	"github.com/eugenenazirov/variant-matrix/internal/report"
	"github.com/eugenenazirov/variant-matrix/internal/storage"
	"github.com/eugenenazirov/variant-matrix/internal/variant"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// fakeRegenerator generates from an in-memory property map.
type fakeRegenerator struct {
	store    storage.Storage
	values   map[string]string
	carriers []string
	calls    int
}

func (f *fakeRegenerator) Regenerate(ctx context.Context) (storage.Snapshot, error) {
	f.calls++
	resolver := properties.NewResolver([]properties.Source{
		properties.NewMapSource(properties.SourceOverride, f.values),
	})
	gen := variant.NewGenerator(resolver)
	configs, err := gen.Generate(ctx, f.carriers, variant.Environments())
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("generate: %w", err)
	}
	rep := report.Build(configs, report.Input{Sources: resolver.Sources(), Common: gen.CommonFields()})
	return f.store.SetReport(rep), nil
}

func setupTestRouter(t *testing.T, opts ...HandlerOption) (http.Handler, *fakeRegenerator, *controllableClock) {
	t.Helper()

	store := storage.NewMemoryStorage()
	regen := &fakeRegenerator{
		store:    store,
		carriers: []string{"Verizon", "T_Mobile"},
		values: map[string]string{
			"VERIZON_PROD_SERVER_URL":     "https://vz",
			"VERIZON_PROD_STORE_PASSWORD": "hunter2",
		},
	}
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	handler := NewHandler(store, regen, append([]HandlerOption{WithClock(clock.Now)}, opts...)...)
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false))

	return router, regen, clock
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type variantsBody struct {
	Generation uint64         `json:"generation"`
	Total      int            `json:"total"`
	Enabled    int            `json:"enabled"`
	Message    string         `json:"message"`
	Entries    []report.Entry `json:"entries"`
}

func decodeVariants(t *testing.T, rec *httptest.ResponseRecorder) variantsBody {
	t.Helper()
	var body variantsBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func mustRegenerate(t *testing.T, router http.Handler) {
	t.Helper()
	if rec := serve(router, http.MethodPost, "/api/regenerate"); rec.Code != http.StatusOK {
		t.Fatalf("regenerate failed with %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, _, clock := setupTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status      string     `json:"status"`
		Timestamp   time.Time  `json:"timestamp"`
		GeneratedAt *time.Time `json:"generatedAt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
	if body.GeneratedAt != nil {
		t.Fatalf("expected no generation yet, got %s", body.GeneratedAt)
	}
}

func TestListVariantsBeforeGeneration(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/variants")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}

func TestRegenerateAndList(t *testing.T) {
	router, regen, _ := setupTestRouter(t)

	rec := serve(router, http.MethodPost, "/api/regenerate")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	regenerated := decodeVariants(t, rec)
	if regenerated.Message == "" || regenerated.Generation != 1 {
		t.Fatalf("unexpected regenerate response: %+v", regenerated)
	}
	if regen.calls != 1 {
		t.Fatalf("expected one regeneration, got %d", regen.calls)
	}

	body := decodeVariants(t, serve(router, http.MethodGet, "/api/variants"))
	// 3 environments + 2 carriers x 2 channels, each in debug and release
	if body.Total != 14 || body.Enabled != 7 {
		t.Fatalf("unexpected counts: total=%d enabled=%d", body.Total, body.Enabled)
	}
	if body.Entries[0].Variant != "DevDebug" {
		t.Fatalf("expected generation order to be preserved, got %q first", body.Entries[0].Variant)
	}
}

func TestListVariantsFilters(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	mustRegenerate(t, router)

	body := decodeVariants(t, serve(router, http.MethodGet, "/api/variants?buildType=release&enabled=true"))
	if body.Total != 2 {
		t.Fatalf("expected the two production release variants, got %d", body.Total)
	}
	for _, e := range body.Entries {
		if e.BuildType != string(gate.Release) || !e.Enabled {
			t.Fatalf("unexpected entry %+v", e)
		}
	}

	for _, target := range []string{"/api/variants?buildType=beta", "/api/variants?enabled=maybe"} {
		if rec := serve(router, http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rec.Code)
		}
	}
}

func TestListVariantsDisabledOnly(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	mustRegenerate(t, router)

	body := decodeVariants(t, serve(router, http.MethodGet, "/api/variants?enabled=false"))
	if body.Total != 7 || body.Enabled != 0 {
		t.Fatalf("expected the seven disabled variants, got total=%d enabled=%d", body.Total, body.Enabled)
	}
	for _, e := range body.Entries {
		if e.Enabled || e.DisabledBy == "" {
			t.Fatalf("expected only disabled entries, got %+v", e)
		}
	}
}

func TestGetVariantMasksSecrets(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	mustRegenerate(t, router)

	rec := serve(router, http.MethodGet, "/api/variants/verizonProductionRelease")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := decodeVariants(t, rec)
	if body.Total != 1 {
		t.Fatalf("expected one entry, got %d", body.Total)
	}

	values := map[string]string{}
	for _, f := range body.Entries[0].Fields {
		values[f.Name] = f.Value
	}
	if values[variant.FieldServerURL] != "https://vz" {
		t.Fatalf("unexpected SERVER_URL %q", values[variant.FieldServerURL])
	}
	if values[variant.FieldStorePassword] != "****" {
		t.Fatalf("expected masked STORE_PASSWORD, got %q", values[variant.FieldStorePassword])
	}
}

func TestGetVariantShowSecrets(t *testing.T) {
	router, _, _ := setupTestRouter(t, WithShowSecrets(true))
	mustRegenerate(t, router)

	body := decodeVariants(t, serve(router, http.MethodGet, "/api/variants/verizonProduction"))
	if body.Total != 2 {
		t.Fatalf("identity lookups return both build types, got %d", body.Total)
	}
	for _, f := range body.Entries[0].Fields {
		if f.Name == variant.FieldStorePassword && f.Value != "hunter2" {
			t.Fatalf("expected clear STORE_PASSWORD, got %q", f.Value)
		}
	}
}

func TestGetVariantNotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	mustRegenerate(t, router)

	if rec := serve(router, http.MethodGet, "/api/variants/o2Production"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestGateEndpoint(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	tests := []struct {
		target      string
		wantStatus  int
		wantEnabled bool
		wantRule    string
	}{
		{"/api/gate?buildType=debug&variant=verizonProduction", http.StatusOK, false, "production-debug"},
		{"/api/gate?buildType=release&variant=verizonProduction", http.StatusOK, true, ""},
		{"/api/gate?buildType=release&variant=Sandbox", http.StatusOK, false, "internal-release"},
		{"/api/gate?buildType=debug&variant=", http.StatusBadRequest, false, ""},
		{"/api/gate?buildType=profile&variant=Dev", http.StatusBadRequest, false, ""},
	}

	for _, tc := range tests {
		rec := serve(router, http.MethodGet, tc.target)
		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: expected status %d, got %d", tc.target, tc.wantStatus, rec.Code)
		}
		if tc.wantStatus != http.StatusOK {
			continue
		}
		var body gateResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Enabled != tc.wantEnabled || body.DisabledBy != tc.wantRule {
			t.Fatalf("%s: unexpected decision %+v", tc.target, body)
		}
	}
}

func TestRegenerateConfigurationError(t *testing.T) {
	router, regen, _ := setupTestRouter(t)
	regen.carriers = []string{"VZW", "vzw"}

	rec := serve(router, http.MethodPost, "/api/regenerate")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Suggestion == "" {
		t.Fatalf("expected a suggestion, got %+v", body)
	}

	// the failed run must not replace the report
	if rec := serve(router, http.MethodGet, "/api/variants"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected no report after failed run, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	if rec := serve(router, http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a registry, got %d", rec.Code)
	}

	withMetrics, _, _ := setupTestRouter(t, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})))
	rec := serve(withMetrics, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics\n" {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}
