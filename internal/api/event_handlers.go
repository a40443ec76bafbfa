// Package api is the ops-facing HTTP surface: health, metrics and a
// read-only view over persisted detection events and risk state. The
// operational protocols stay on their own TCP/UDP endpoints; nothing here is
// in the detection path.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/technosupport/falcon/internal/data"
)

type EventHandler struct {
	Events data.EventModel
}

func NewEventHandler(events data.EventModel) *EventHandler {
	return &EventHandler{Events: events}
}

type eventResponse struct {
	ID         int64  `json:"id"`
	Kind       int    `json:"kind"`
	ObjectID   string `json:"object_id"`
	Class      string `json:"class"`
	MapX       int    `json:"map_x"`
	MapY       int    `json:"map_y"`
	AreaID     int    `json:"area_id,omitempty"`
	OccurredAt string `json:"occurred_at"`
	ImgPath    string `json:"img_path,omitempty"`
}

// List serves GET /api/v1/events?limit=N, newest first.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.Events.ListRecent(r.Context(), limit)
	if err != nil {
		log.Printf("[ERROR] API: list events: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:         e.ID,
			Kind:       int(e.Kind),
			ObjectID:   e.ObjectID,
			Class:      e.Class,
			MapX:       e.MapX,
			MapY:       e.MapY,
			AreaID:     e.AreaID,
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339),
			ImgPath:    e.ImgPath,
		})
	}
	writeJSON(w, map[string]any{"events": out})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] API: encode response: %v", err)
	}
}
