package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dyluth/glimpse/internal/trial"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Sinks  int    `json:"sinks"`
	Error  string `json:"error,omitempty"`
}

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	Session      string          `json:"session"`
	Subject      string          `json:"subject,omitempty"`
	Phase        trial.Phase     `json:"phase"`
	TrialIndex   int             `json:"trialIndex,omitempty"`
	Coherence    float64         `json:"coherence,omitempty"`
	Quadrant     string          `json:"quadrant,omitempty"`
	FrameNumber  uint64          `json:"frameNumber"`
	RealizedRate float64         `json:"realizedRate"`
	Completed    int             `json:"completed"`
	Paused       bool            `json:"paused"`
	Done         bool            `json:"done"`
	Summary      Summary         `json:"summary"`
	Results      []ResultSummary `json:"results"`
}

// ResultSummary is one finalized trial as reported by the status server.
type ResultSummary struct {
	Index          int           `json:"index"`
	Outcome        trial.Outcome `json:"outcome"`
	ReactionTimeMS *int64        `json:"reactionTimeMs,omitempty"`
	Coherence      float64       `json:"coherence"`
	Quadrant       string        `json:"quadrant"`
	Extensions     int           `json:"extensions"`
	AutoRewarded   bool          `json:"autoRewarded"`
	Aborted        bool          `json:"aborted"`
}

// ActionResponse is the JSON body returned by the control endpoints.
type ActionResponse struct {
	Action     string `json:"action"`
	Outcome    string `json:"outcome,omitempty"`
	TrialIndex int    `json:"trialIndex,omitempty"`
	Changed    bool   `json:"changed"`
}

// Handler returns the status and control router.
func (s *Session) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/trials/{index}", s.handleTrial)
	r.Post("/respond", s.handleRespond)
	r.Post("/pause", s.handlePause)
	r.Post("/resume", s.handleResume)

	return r
}

// handleHealth returns 200 when every pingable sink answers, 503 otherwise.
func (s *Session) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{Status: "healthy", Sinks: len(s.sinks)}
	for _, sink := range s.sinks {
		p, ok := sink.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Session) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	history := s.engine.History()

	response := StatusResponse{
		Session:      s.id,
		Subject:      s.cfg.Session.Subject,
		Phase:        snap.Phase,
		FrameNumber:  snap.FrameNumber,
		RealizedRate: snap.RealizedRate,
		Completed:    snap.Completed,
		Paused:       snap.Paused,
		Done:         snap.Done,
		Summary:      Summarize(history),
		Results:      make([]ResultSummary, 0, len(history)),
	}
	if a, ok := snap.Slot.(trial.ActiveSlot); ok {
		response.TrialIndex = a.Config.Index
		response.Coherence = a.Config.Coherence
		response.Quadrant = string(a.Config.Quadrant)
	}
	for _, res := range history {
		response.Results = append(response.Results, summarizeResult(res))
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Session) handleTrial(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 1 {
		http.Error(w, "invalid trial index", http.StatusBadRequest)
		return
	}

	for _, res := range s.engine.History() {
		if res.Index == index {
			writeJSON(w, http.StatusOK, summarizeResult(res))
			return
		}
	}
	http.Error(w, "trial not found", http.StatusNotFound)
}

// handleRespond registers a response stamped with the receive time.
func (s *Session) handleRespond(w http.ResponseWriter, r *http.Request) {
	out := s.Respond(s.clock())
	writeJSON(w, http.StatusOK, ActionResponse{
		Action:     string(out.Action),
		Outcome:    string(out.Outcome),
		TrialIndex: out.TrialIndex,
		Changed:    out.Action != trial.ActionIgnored && out.Action != trial.ActionSuppressed,
	})
}

func (s *Session) handlePause(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ActionResponse{Action: "pause", Changed: s.Pause()})
}

func (s *Session) handleResume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ActionResponse{Action: "resume", Changed: s.Resume()})
}

func summarizeResult(res trial.Result) ResultSummary {
	out := ResultSummary{
		Index:        res.Index,
		Outcome:      res.Outcome,
		Coherence:    res.Config.Coherence,
		Quadrant:     string(res.Config.Quadrant),
		Extensions:   res.Extensions,
		AutoRewarded: res.AutoRewarded,
		Aborted:      res.Aborted,
	}
	if res.HasReactionTime {
		ms := res.ReactionTime.Milliseconds()
		out.ReactionTimeMS = &ms
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
