// Package webapi exposes each pipeline stage as an HTTP-triggered function
// plus read endpoints and a realtime feed for the dashboard.
package webapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/gridmeld/gridmeld/pkg/aggregator"
	"github.com/gridmeld/gridmeld/pkg/cleaner"
	"github.com/gridmeld/gridmeld/pkg/normalizer"
	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog/log"
)

const defaultReadLimit = 100

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboard origins are not known in advance
	},
}

type Handler struct {
	store      *pipedb.Store
	cleaner    *cleaner.Cleaner
	normalizer *normalizer.Normalizer
	hourly     *aggregator.Hourly
	daily      *aggregator.Daily
	retention  time.Duration
	hub        *Hub

	// now is the evaluation clock for every stage; injectable for tests
	now func() time.Time
}

type Windows struct {
	CleanLookback     time.Duration
	NormalizeLookback time.Duration
	HourlyLookback    time.Duration
	Retention         time.Duration
}

func NewHandler(store *pipedb.Store, windows Windows) *Handler {
	return &Handler{
		store:      store,
		cleaner:    cleaner.New(store, windows.CleanLookback),
		normalizer: normalizer.New(store, windows.NormalizeLookback),
		hourly:     aggregator.NewHourly(store, windows.HourlyLookback),
		daily:      aggregator.NewDaily(store),
		retention:  windows.Retention,
		hub:        NewHub(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Hub returns the realtime feed so schedulers can broadcast too.
func (h *Handler) Hub() *Hub {
	return h.hub
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/", h.handleRoot)
	r.HandleFunc("/functions/clean-readings", h.handleClean)
	r.HandleFunc("/functions/normalize-readings", h.handleNormalize)
	r.HandleFunc("/functions/aggregate-hourly", h.handleAggregateHourly)
	r.HandleFunc("/functions/aggregate-daily", h.handleAggregateDaily)
	r.HandleFunc("/functions/cleanup", h.handleCleanup)
	r.HandleFunc("/readings/hourly", h.handleHourlyReadings)
	r.HandleFunc("/baselines", h.handleBaselines)
	r.HandleFunc("/devices", h.handleDevices)
	r.HandleFunc("/ws", h.handleWebSocket)

	return r
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "gridmeld telemetry pipeline",
		"status":  "running",
	})
}

func (h *Handler) handleClean(w http.ResponseWriter, r *http.Request) {
	count, err := h.cleaner.Run(h.now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, fmt.Sprintf("Cleaned %d reading(s) successfully", count))
}

func (h *Handler) handleNormalize(w http.ResponseWriter, r *http.Request) {
	count, err := h.normalizer.Run(h.now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, fmt.Sprintf("Normalized %d reading(s) successfully", count))
}

func (h *Handler) handleAggregateHourly(w http.ResponseWriter, r *http.Request) {
	aggregates, err := h.hourly.Run(h.now())
	if err != nil {
		respondError(w, err)
		return
	}
	if len(aggregates) > 0 {
		h.hub.Broadcast(map[string]any{
			"type":     "hourly_aggregates",
			"readings": aggregates,
		})
	}
	respondMessage(w, fmt.Sprintf("Aggregated %d device(s) successfully", len(aggregates)))
}

func (h *Handler) handleAggregateDaily(w http.ResponseWriter, r *http.Request) {
	count, err := h.daily.Run(h.now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, fmt.Sprintf("Upserted %d baseline(s) successfully", count))
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	pruned, err := aggregator.Cleanup(h.store, h.retention, h.now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, fmt.Sprintf("Pruned %d expired reading(s) successfully", pruned))
}

func (h *Handler) handleHourlyReadings(w http.ResponseWriter, r *http.Request) {
	aggregates, err := h.store.HourlyAggregates(r.URL.Query().Get("device_id"), readLimit(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if aggregates == nil {
		aggregates = []types.HourlyAggregate{}
	}
	writeJSON(w, http.StatusOK, aggregates)
}

func (h *Handler) handleBaselines(w http.ResponseWriter, r *http.Request) {
	baselines, err := h.store.DailyBaselines(r.URL.Query().Get("device_id"), readLimit(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if baselines == nil {
		baselines = []types.DailyBaseline{}
	}
	writeJSON(w, http.StatusOK, baselines)
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.ListDevices()
	if err != nil {
		respondError(w, err)
		return
	}
	if devices == nil {
		devices = []types.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.hub.Add(conn)

	// Keep connection alive until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Remove(conn)
			break
		}
	}
}

func readLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			return limit
		}
	}
	return defaultReadLimit
}
