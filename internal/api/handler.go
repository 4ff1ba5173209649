package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eugenenazirov/variant-matrix/internal/gate"
	"github.com/eugenenazirov/variant-matrix/internal/report"
	"github.com/eugenenazirov/variant-matrix/internal/storage"
	"github.com/eugenenazirov/variant-matrix/internal/variant"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Regenerator runs a generation and stores its report.
type Regenerator interface {
	Regenerate(ctx context.Context) (storage.Snapshot, error)
}

// Handler wires storage and generation dependencies into HTTP handlers.
type Handler struct {
	storage     storage.Storage
	regenerator Regenerator
	metrics     http.Handler
	showSecrets bool

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithShowSecrets disables masking of secret fields in responses.
func WithShowSecrets(show bool) HandlerOption {
	return func(h *Handler) {
		h.showSecrets = show
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(metrics http.Handler) HandlerOption {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.Storage, regenerator Regenerator, opts ...HandlerOption) *Handler {
	h := &Handler{
		storage:     store,
		regenerator: regenerator,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	if snap, err := h.storage.GetReport(); err == nil {
		resp.Generation = snap.Generation
		generatedAt := snap.GeneratedAt
		resp.GeneratedAt = &generatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListVariants(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, h.variantsResponse(snap, filter))
}

func (h *Handler) handleGetVariant(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(r.PathValue("identity"))
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	filter.Identity = identity

	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	resp := h.variantsResponse(snap, filter)
	if len(resp.Entries) == 0 {
		writeError(w, http.StatusNotFound, "Variant not found", "no variant or identity named "+strconv.Quote(identity))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	buildType, err := gate.ParseBuildType(query.Get("buildType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error(), "buildType must be debug or release")
		return
	}
	name := strings.TrimSpace(query.Get("variant"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "variant is required")
		return
	}

	decision := gate.Decide(buildType, name)
	writeJSON(w, http.StatusOK, gateResponse{
		BuildType:  string(buildType),
		Variant:    name,
		Enabled:    decision.Enabled,
		DisabledBy: decision.Rule,
	})
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	if h.regenerator == nil {
		writeError(w, http.StatusServiceUnavailable, "Regeneration unavailable", "no generator configured")
		return
	}

	snap, err := h.regenerator.Regenerate(r.Context())
	if err != nil {
		if errors.Is(err, variant.ErrConfiguration) {
			writeError(w, http.StatusUnprocessableEntity, "Invalid variant configuration", err.Error(),
				"Check the carrier and environment lists for empty or colliding names")
			return
		}
		writeInternalError(w, err)
		return
	}

	resp := h.variantsResponse(snap, report.Filter{})
	resp.Message = "Variants regenerated successfully"
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeError(w, http.StatusNotFound, "Metrics disabled", "no metrics registry configured")
		return
	}
	h.metrics.ServeHTTP(w, r)
}

func (h *Handler) snapshot(w http.ResponseWriter) (storage.Snapshot, bool) {
	snap, err := h.storage.GetReport()
	if err != nil {
		if errors.Is(err, storage.ErrNoReport) {
			writeError(w, http.StatusServiceUnavailable, "Report unavailable", err.Error(), "POST /api/regenerate to generate one")
			return storage.Snapshot{}, false
		}
		writeInternalError(w, err)
		return storage.Snapshot{}, false
	}
	return snap, true
}

func (h *Handler) variantsResponse(snap storage.Snapshot, filter report.Filter) variantsResponse {
	rep := snap.Report
	if !h.showSecrets {
		rep = rep.Masked()
	}
	rep = rep.Filter(filter)
	return variantsResponse{
		Generation:  snap.Generation,
		GeneratedAt: snap.GeneratedAt,
		Total:       len(rep.Entries),
		Enabled:     rep.EnabledCount(),
		Report:      rep,
	}
}

func parseFilter(w http.ResponseWriter, r *http.Request) (report.Filter, bool) {
	query := r.URL.Query()
	var filter report.Filter

	if raw := query.Get("buildType"); raw != "" {
		buildType, err := gate.ParseBuildType(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error(), "buildType must be debug or release")
			return report.Filter{}, false
		}
		filter.BuildType = buildType
	}

	if raw := query.Get("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", "enabled must be a boolean")
			return report.Filter{}, false
		}
		filter.Enabled = report.OnlyEnabled(enabled)
	}
	return filter, true
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type variantsResponse struct {
	Generation  uint64    `json:"generation"`
	GeneratedAt time.Time `json:"generatedAt"`
	Total       int       `json:"total"`
	Enabled     int       `json:"enabled"`
	Message     string    `json:"message,omitempty"`
	report.Report
}

type gateResponse struct {
	BuildType  string `json:"buildType"`
	Variant    string `json:"variant"`
	Enabled    bool   `json:"enabled"`
	DisabledBy string `json:"disabledBy,omitempty"`
}

type healthResponse struct {
	Status      string     `json:"status"`
	Timestamp   time.Time  `json:"timestamp"`
	Generation  uint64     `json:"generation"`
	GeneratedAt *time.Time `json:"generatedAt,omitempty"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
