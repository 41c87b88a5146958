package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string     `json:"status"` // "ok" or "stale"
	LastPoll *time.Time `json:"last_poll,omitempty"`
}

// handleHealth returns 200 while polls keep succeeding and 503 once the
// last success is older than staleAfter. Before the first success the
// gateway start time is the reference.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.health != nil && g.staleAfter > 0 {
			ref := g.startedAt
			if last := g.health.LastSuccess(); !last.IsZero() {
				resp.LastPoll = &last
				ref = last
			}
			if g.now().Sub(ref) > g.staleAfter {
				resp.Status = "stale"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
