package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nickray/healthlake/pkg/cache"
	"github.com/nickray/healthlake/pkg/httpx"
	"github.com/nickray/healthlake/pkg/rollup"
)

var startTime = time.Now()

// Handler serves the read endpoints. Each request validates the requested
// period is in the past, then asks the cache manager for the rollup; empty
// rollups map to not-found.
type Handler struct {
	cache *cache.Manager
	loc   *time.Location
	now   func() time.Time
}

// NewHandler creates a read-path handler. loc is the reference timezone in
// which "today" is observed.
func NewHandler(manager *cache.Manager, loc *time.Location) *Handler {
	return &Handler{cache: manager, loc: loc, now: time.Now}
}

// HandleDetail handles GET /detail/{date}: all metric results for one date.
func (h *Handler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	h.serveDay(w, r, rollup.Day)
}

// HandleWorkouts handles GET /workouts/{date}: all workouts for one date.
func (h *Handler) HandleWorkouts(w http.ResponseWriter, r *http.Request) {
	h.serveDay(w, r, rollup.DayWorkouts)
}

func (h *Handler) serveDay(w http.ResponseWriter, r *http.Request, scope func(string) rollup.Scope) {
	date := mux.Vars(r)["date"]

	requested, err := time.ParseInLocation("2006-01-02", date, h.loc)
	if err != nil {
		httpx.RespondErrorString(w, http.StatusNotFound, "Please specify a date in the past.")
		return
	}
	if !requested.Before(h.today()) {
		httpx.RespondErrorString(w, http.StatusNotFound, "Please specify a date in the past.")
		return
	}

	h.serve(w, r, scope(date), "No data available for this date.")
}

// HandleSummary handles GET /summary/{month}: per-day metric rollup for one
// calendar month.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	month := mux.Vars(r)["month"]

	requested, err := time.ParseInLocation("2006-01", month, h.loc)
	if err != nil {
		httpx.RespondErrorString(w, http.StatusNotFound, "Please specify a month in the past.")
		return
	}
	now := h.now().In(h.loc)
	currentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, h.loc)
	if !requested.Before(currentMonth) {
		httpx.RespondErrorString(w, http.StatusNotFound, "Please specify a month in the past.")
		return
	}

	h.serve(w, r, rollup.Month(month), "No data available for this month.")
}

// HandleGlobal handles GET /global: the all-time metrics summary.
func (h *Handler) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, rollup.Global(), "No data available.")
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, scope rollup.Scope, emptyMessage string) {
	body, err := h.cache.Fetch(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	if emptyJSON(body) {
		httpx.RespondErrorString(w, http.StatusNotFound, emptyMessage)
		return
	}
	httpx.RespondRawJSON(w, http.StatusOK, body)
}

// today is the start of the current date in the reference timezone.
func (h *Handler) today() time.Time {
	now := h.now().In(h.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
}

// emptyJSON reports whether body is an empty JSON object or array, meaning
// the period has no data.
func emptyJSON(body []byte) bool {
	var value interface{}
	if err := json.Unmarshal(body, &value); err != nil {
		return len(body) == 0
	}
	switch v := value.(type) {
	case map[string]interface{}:
		return len(v) == 0
	case []interface{}:
		return len(v) == 0
	case nil:
		return true
	}
	return false
}

// HandleHealth returns service health status.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"uptime":  time.Since(startTime).String(),
	})
}
