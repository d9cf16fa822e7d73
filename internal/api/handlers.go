package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/subathon-tools/subtimer/internal/subs"
	"github.com/subathon-tools/subtimer/internal/timer"
)

// Handler exposes the timer's control operations over plain JSON HTTP. Every
// call returns a structured success or error payload; nothing here can
// surface an unhandled fault to a client.
type Handler struct {
	engine     *timer.Engine
	translator *subs.Translator
	stats      func() map[string]any
}

// NewHandler wires the control surface. stats is optional.
func NewHandler(engine *timer.Engine, translator *subs.Translator, stats func() map[string]any) *Handler {
	return &Handler{engine: engine, translator: translator, stats: stats}
}

// RegisterRoutes registers all control routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/timer/start", h.handleStart)
	mux.HandleFunc("/api/timer/stop", h.handleStop)
	mux.HandleFunc("/api/timer/reset", h.handleReset)
	mux.HandleFunc("/api/timer/add-time", h.handleAddTime)
	mux.HandleFunc("/api/timer/state", h.handleState)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/health", h.handleHealth)
	mux.HandleFunc("/api/recover", h.handleRecover)
	mux.HandleFunc("/api/simulate/sub", h.handleSimulateSub)
	mux.HandleFunc("/api/stats", h.handleStats)
	log.Info().Msg("control routes registered")
}

type timerResponse struct {
	Success       bool `json:"success"`
	TimeRemaining int  `json:"timeRemaining"`
	IsActive      bool `json:"isActive"`
}

func stateResponse(st timer.State) timerResponse {
	return timerResponse{Success: true, TimeRemaining: st.TimeRemaining, IsActive: st.IsActive}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(h.engine.Start()))
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(h.engine.Stop()))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Seconds *float64 `json:"seconds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	seconds := float64(timer.DefaultDuration)
	if body.Seconds != nil {
		seconds = *body.Seconds
	}
	writeJSON(w, http.StatusOK, stateResponse(h.engine.Reset(seconds)))
}

func (h *Handler) handleAddTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Seconds    float64                  `json:"seconds"`
		Subscriber *timer.SubscriberDetails `json:"subscriber"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	st, err := h.engine.AddTime(body.Seconds, body.Subscriber)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid seconds value")
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(st))
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.GetState())
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.engine.GetSettings())
	case http.MethodPost, http.MethodPut:
		var partial map[string]any
		if err := decodeBody(r, &partial); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, h.engine.UpdateSettings(partial))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health := h.engine.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (h *Handler) handleRecover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ok, err := h.engine.Recover()
	if err != nil {
		if errors.Is(err, timer.ErrRecoveryThrottled) {
			writeError(w, http.StatusTooManyRequests, "Recovery attempted too recently")
			return
		}
		writeError(w, http.StatusInternalServerError, "Recovery failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": ok})
}

// handleSimulateSub injects a fake subscription event, used by the dev
// dashboard to exercise the pipeline without a live chat connection.
func (h *Handler) handleSimulateSub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Username  string `json:"username"`
		TierCode  string `json:"tierCode"`
		EventKind string `json:"eventKind"`
		Count     int    `json:"count"`
		Recipient string `json:"recipient"`
		Months    int    `json:"months"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	added := h.translator.Apply(subs.Event{
		Username:  body.Username,
		Tier:      subs.TierFromCode(body.TierCode),
		Kind:      subs.KindFromString(body.EventKind),
		Count:     body.Count,
		Recipient: body.Recipient,
		Months:    body.Months,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "timeAdded": added})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := map[string]any{"service": "subtimer"}
	if h.stats != nil {
		for k, v := range h.stats() {
			stats[k] = v
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
