package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nickray/healthlake/pkg/httpx"
)

// Handler handles health export sync requests.
type Handler struct {
	writer *Writer
	hub    *SyncHub
}

// NewHandler creates a sync handler. hub may be nil when no live
// notification stream is wanted (tests).
func NewHandler(writer *Writer, hub *SyncHub) *Handler {
	return &Handler{writer: writer, hub: hub}
}

// SyncResponse is the response body for POST /sync.
type SyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HandleSync handles the POST /sync endpoint: flattens the export payload
// and appends the rows to the data lake.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	var payload SyncPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	metrics, workouts, err := Transform(payload)
	if err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	ctx := r.Context()
	if len(metrics) > 0 {
		key, err := h.writer.WriteMetrics(ctx, metrics)
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		log.Printf("Stored %d metric records at %s", len(metrics), key)
	}
	if len(workouts) > 0 {
		key, err := h.writer.WriteWorkouts(ctx, workouts)
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		log.Printf("Stored %d workout records at %s", len(workouts), key)
	}

	if h.hub != nil {
		h.hub.Broadcast(SyncEvent{
			Type:      "sync",
			Timestamp: time.Now().Unix(),
			Metrics:   len(metrics),
			Workouts:  len(workouts),
		})
	}

	httpx.RespondJSON(w, http.StatusOK, SyncResponse{
		Success: true,
		Message: "Successfully received and stored sync data.",
	})
}
