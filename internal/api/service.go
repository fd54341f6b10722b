// Package api provides the operator HTTP surface of the stats engine:
// listing registered charts, triggering updates and streaming update
// events over WebSocket. It is not the end-user read API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chainstats/stats-engine/internal/charts"
	"github.com/chainstats/stats-engine/internal/model"
)

// Registry is the part of charts.Registry the handlers use.
type Registry interface {
	Infos() []model.ChartInfo
	Update(ctx context.Context, name string, forceFull bool) (charts.Result, error)
	UpdateAll(ctx context.Context, forceFull bool) ([]charts.Result, error)
}

// SeriesReader reads persisted chart data.
type SeriesReader interface {
	LastDate(ctx context.Context, chart string) (model.Checkpoint, error)
	Series(ctx context.Context, chart string) ([]model.DateValue, error)
}

// Service handles operator requests.
type Service struct {
	registry Registry
	store    SeriesReader
}

// NewService creates a new operator service.
func NewService(registry Registry, store SeriesReader) *Service {
	return &Service{registry: registry, store: store}
}

// Routes mounts the handlers on r. hub may be nil.
func (s *Service) Routes(r chi.Router, hub *WSHub) {
	r.Get("/charts", s.ListCharts)
	r.Post("/charts/update", s.UpdateAll)
	r.Get("/charts/{name}/series", s.GetSeries)
	r.Post("/charts/{name}/update", s.UpdateChart)
	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}
}

// --- Response types ---

// ChartSummary is one entry of GET /api/v1/charts.
type ChartSummary struct {
	Name     string     `json:"name"`
	Kind     model.Kind `json:"kind"`
	LastDate string     `json:"last_date,omitempty"`
}

// UpdateResponse describes one completed update.
type UpdateResponse struct {
	Chart      string `json:"chart"`
	RunID      string `json:"run_id"`
	ForceFull  bool   `json:"force_full"`
	Checkpoint string `json:"checkpoint"`
	LastDate   string `json:"last_date,omitempty"`
	Rows       int    `json:"rows"`
	FinishedAt string `json:"finished_at"`
}

// UpdateAllResponse is the body of POST /api/v1/charts/update.
type UpdateAllResponse struct {
	Updated []UpdateResponse `json:"updated"`
	Failed  []string         `json:"failed,omitempty"`
}

func newUpdateResponse(res charts.Result) UpdateResponse {
	out := UpdateResponse{
		Chart:      res.Chart,
		RunID:      res.RunID,
		ForceFull:  res.Full,
		Checkpoint: res.Checkpoint.String(),
		Rows:       res.Rows,
		FinishedAt: res.FinishedAt.Format(time.RFC3339),
	}
	if res.LastDate.Valid {
		out.LastDate = res.LastDate.String()
	}
	return out
}

// --- HTTP Handlers ---

// ListCharts handles GET /api/v1/charts
func (s *Service) ListCharts(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.Infos()
	out := make([]ChartSummary, 0, len(infos))
	for _, info := range infos {
		sum := ChartSummary{Name: info.Name, Kind: info.Kind}
		cp, err := s.store.LastDate(r.Context(), info.Name)
		if err != nil {
			slog.Error("failed to read checkpoint", "chart", info.Name, "err", err)
			writeError(w, "failed to read checkpoints", http.StatusInternalServerError)
			return
		}
		if cp.Valid {
			sum.LastDate = cp.String()
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSeries handles GET /api/v1/charts/{name}/series
// It returns the persisted series for verification after an update.
func (s *Service) GetSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.registered(name) {
		writeError(w, charts.NotFound(name).Error(), http.StatusNotFound)
		return
	}

	values, err := s.store.Series(r.Context(), name)
	if err != nil {
		slog.Error("failed to read series", "chart", name, "err", err)
		writeError(w, "failed to read series", http.StatusInternalServerError)
		return
	}
	if values == nil {
		values = []model.DateValue{}
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Service) registered(name string) bool {
	for _, info := range s.registry.Infos() {
		if info.Name == name {
			return true
		}
	}
	return false
}

// UpdateChart handles POST /api/v1/charts/{name}/update?force_full=true
func (s *Service) UpdateChart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	forceFull, ok := parseForceFull(w, r)
	if !ok {
		return
	}

	res, err := s.registry.Update(r.Context(), name, forceFull)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, newUpdateResponse(res))
}

// UpdateAll handles POST /api/v1/charts/update?force_full=true
// Charts update independently; a partial failure still reports the charts
// that succeeded, with status 502.
func (s *Service) UpdateAll(w http.ResponseWriter, r *http.Request) {
	forceFull, ok := parseForceFull(w, r)
	if !ok {
		return
	}

	results, err := s.registry.UpdateAll(r.Context(), forceFull)
	resp := UpdateAllResponse{Updated: make([]UpdateResponse, 0, len(results))}
	for _, res := range results {
		resp.Updated = append(resp.Updated, newUpdateResponse(res))
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
		for _, e := range splitErrors(err) {
			resp.Failed = append(resp.Failed, e.Error())
		}
	}
	writeJSON(w, status, resp)
}

func parseForceFull(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("force_full")
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, "force_full must be a boolean", http.StatusBadRequest)
		return false, false
	}
	return v, true
}

// statusFor maps the update error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, charts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, charts.ErrSourceUnavailable), errors.Is(err, charts.ErrCanceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func splitErrors(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		if _, single := err.(*charts.UpdateError); !single {
			return joined.Unwrap()
		}
	}
	return []error{err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
