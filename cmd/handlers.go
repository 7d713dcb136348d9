package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seven320/pose-net-correction/internal/analytics"
	"github.com/seven320/pose-net-correction/internal/driver"
	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/internal/render"
	"github.com/seven320/pose-net-correction/internal/settings"
	"github.com/seven320/pose-net-correction/internal/source"
	"github.com/seven320/pose-net-correction/pkg/log"
)

func (a *app) router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", a.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/frames", a.framesHandler).Methods(http.MethodPost)
	r.HandleFunc("/start", a.startHandler).Methods(http.MethodPost)
	r.HandleFunc("/snapshot", a.snapshotHandler).Methods(http.MethodGet)
	r.HandleFunc("/chart", a.chartHandler).Methods(http.MethodGet)
	r.HandleFunc("/latest", a.latestHandler).Methods(http.MethodGet)
	r.HandleFunc("/alerts", a.alertsHandler).Methods(http.MethodGet)
	r.HandleFunc("/settings", a.getSettingsHandler).Methods(http.MethodGet)
	r.HandleFunc("/settings", a.putSettingsHandler).Methods(http.MethodPut)
	r.HandleFunc("/overlay", a.overlayHandler).Methods(http.MethodPost)
	r.Handle("/ws", a.hub).Methods(http.MethodGet)
	return r
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Check(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("redis unavailable"))
		return
	}

	_, _ = w.Write([]byte("ok"))
}

func (a *app) decodeFrame(w http.ResponseWriter, r *http.Request) (model.Frame, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var f model.Frame
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&f); err != nil {
		a.prom.badReqTotal.Inc()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid json"))
		return f, false
	}
	if err := a.validate.Struct(f); err != nil {
		a.prom.badReqTotal.Inc()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid pose values"))
		return f, false
	}
	return f, true
}

func (a *app) framesHandler(w http.ResponseWriter, r *http.Request) {
	if a.push == nil {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("pose source does not accept pushed frames"))
		return
	}

	f, ok := a.decodeFrame(w, r)
	if !ok {
		return
	}
	if f.Timestamp == 0 {
		f.Timestamp = time.Now().UnixMilli()
	}

	switch err := a.push.Offer(f); {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("accepted"))
	case errors.Is(err, source.ErrQueueFull):
		a.prom.queueFullTotal.Inc()
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("queue full"))
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(err.Error()))
	}
}

type armResponse struct {
	Baseline float64 `json:"baseline"`
}

func (a *app) startHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	baseline, err := a.Arm(ctx)
	switch {
	case err == nil:
		respondJSON(w, armResponse{Baseline: baseline})
	case errors.Is(err, analytics.ErrUnarmedThreshold):
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(err.Error()))
	case errors.Is(err, driver.ErrNotRunning):
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(err.Error()))
	default:
		log.Error(log.Fields{"error": err.Error()}, "[app.startHandler] arm failed")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("arm failed"))
	}
}

func (a *app) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, a.driver.Latest())
}

func (a *app) chartHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, render.ChartOf(a.driver.Latest()))
}

func (a *app) latestHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snap, err := a.store.FetchLatest(ctx)
	if err != nil {
		a.prom.redisErrTotal.Inc()
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("redis error"))
		return
	}
	if snap == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no data"))
		return
	}

	respondJSON(w, snap)
}

func (a *app) alertsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid limit"))
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	events, err := a.store.RecentAlerts(ctx, limit)
	if err != nil {
		a.prom.redisErrTotal.Inc()
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("redis error"))
		return
	}
	respondJSON(w, events)
}

func (a *app) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, a.settings.Get())
}

func (a *app) putSettingsHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)

	var p settings.Panel
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid json"))
		return
	}

	if err := a.settings.Update(p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	respondJSON(w, a.settings.Get())
}

func (a *app) overlayHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := a.decodeFrame(w, r)
	if !ok {
		return
	}
	respondJSON(w, render.Overlay(f.Poses, a.settings.Get()))
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
