package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flemzord/wirebot/internal/runner"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime            int64        `json:"uptime_seconds"`
	Username          string       `json:"username,omitempty"`
	BotID             int64        `json:"bot_id,omitempty"`
	LastUpdateID      int64        `json:"last_update_id"`
	LastSentMessageID int          `json:"last_sent_message_id"`
	Breaker           string       `json:"breaker"`
	Runner            runner.Stats `json:"runner"`
}

// handleStatus returns an http.HandlerFunc for GET /status. It only reads
// the session's concurrency-safe accessors and never waits for the poll.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:  int64(g.now().Sub(g.startedAt) / time.Second),
			Breaker: "disabled",
		}

		if g.runner != nil {
			b := g.runner.Bot()
			if me, ok := b.Identity(); ok {
				resp.Username = me.Username
				resp.BotID = me.ID
			}
			resp.LastUpdateID = b.LastUpdateID()
			resp.LastSentMessageID = b.LastSentMessageID()
			resp.Breaker = b.Engine().BreakerState()
			resp.Runner = g.runner.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
