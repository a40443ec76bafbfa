package api

import (
	"net/http"
	"time"

	"github.com/technosupport/falcon/internal/dispatch"
)

type RiskHandler struct {
	Machine *dispatch.RiskMachine
}

func NewRiskHandler(machine *dispatch.RiskMachine) *RiskHandler {
	return &RiskHandler{Machine: machine}
}

// Get serves GET /api/v1/risk with the current bird and runway state.
func (h *RiskHandler) Get(w http.ResponseWriter, r *http.Request) {
	state := h.Machine.Snapshot()
	writeJSON(w, map[string]any{
		"bird_risk":    string(state.Bird),
		"runway_a":     string(state.RunwayA),
		"runway_b":     string(state.RunwayB),
		"availability": state.Availability(),
		"as_of":        time.Now().UTC().Format(time.RFC3339),
	})
}
