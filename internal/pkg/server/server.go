package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/bucket"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/export"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/storage"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/summary"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/window"
)

var errUnknownAction = errors.New("unknown action")

type summarizer interface {
	Summarize(ctx context.Context, deviceID string, spec window.Spec, width bucket.Width, ref time.Time) (model.DeviceSummary, error)
	SummarizeAll(ctx context.Context, spec window.Spec, width bucket.Width, ref time.Time) ([]model.DeviceSummary, error)
	Devices() []model.Device
	Location() *time.Location
}

type actions interface {
	SendDailySummary(ctx context.Context, force bool) error
	SendMonthlySummary(ctx context.Context, force bool) error
}

type server struct {
	engine  summarizer
	actions actions
	tariff  export.Tariff
	hub     *Hub
	logger  *zap.Logger
	now     func() time.Time
}

func New(e summarizer, a actions, tariff export.Tariff, hub *Hub) *server {
	return &server{
		engine:  e,
		actions: a,
		tariff:  tariff,
		hub:     hub,
		logger:  zap.L(),
		now:     time.Now,
	}
}

func (s *server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/api/devices", s.listDevices).Methods("GET")
	r.HandleFunc("/api/devices/{id}/summary", s.getSummary).Methods("GET")
	r.HandleFunc("/api/devices/{id}/export.csv", s.exportCSV).Methods("GET")
	r.HandleFunc("/api/devices/{id}/invoice", s.getInvoice).Methods("GET")
	r.HandleFunc("/api/actions/{action}", s.postAction).Methods("POST")
	if s.hub != nil {
		r.HandleFunc("/api/live", s.hub.ServeWS).Methods("GET")
	}
	return r
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) listDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Devices())
}

func (s *server) summarize(r *http.Request) (model.DeviceSummary, error) {
	spec, err := window.ParseSpec(r.URL.Query().Get("window"), s.engine.Location())
	if err != nil {
		return model.DeviceSummary{}, err
	}
	width, err := parseWidth(r.URL.Query().Get("bucket"), spec)
	if err != nil {
		return model.DeviceSummary{}, err
	}
	return s.engine.Summarize(r.Context(), mux.Vars(r)["id"], spec, width, s.now())
}

func (s *server) getSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summarize(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		detail := model.DetailLevel(r.URL.Query().Get("detail"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(summary.Text(sum, summary.Options{Detail: detail})))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *server) exportCSV(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summarize(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sum.DeviceID+".csv"))
	if err := export.WriteCSV(w, sum); err != nil {
		s.logger.Error("failed to write csv export", zap.String("device", sum.DeviceID), zap.Error(err))
	}
}

func (s *server) getInvoice(w http.ResponseWriter, r *http.Request) {
	if s.tariff == nil {
		s.handleError(w, errors.New("no tariff configured"))
		return
	}
	sum, err := s.summarize(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export.NewInvoice(sum, s.tariff))
}

func (s *server) postAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	var err error
	switch action {
	case "send_daily_summary":
		err = s.actions.SendDailySummary(r.Context(), true)
	case "send_monthly_summary":
		err = s.actions.SendMonthlySummary(r.Context(), true)
	default:
		err = fmt.Errorf("%w: %s", errUnknownAction, action)
	}
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.logger.Info("action executed", zap.String("action", action))
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "action": action})
}

func parseWidth(raw string, spec window.Spec) (bucket.Width, error) {
	if raw == "" {
		return spec.DefaultWidth(), nil
	}
	width, ok := model.ParseWidth(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown bucket %q", window.ErrInvalidWindow, raw)
	}
	return width, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, window.ErrInvalidWindow), errors.Is(err, summary.ErrEmptyWindow):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrDeviceNotFound), errors.Is(err, errUnknownAction):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *server) handleError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
