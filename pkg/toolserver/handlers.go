package toolserver

import (
	"encoding/json"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/LY-Tri/Spider2/internal/tracing"
	"github.com/LY-Tri/Spider2/pkg/bench"
)

// ExecuteRequest is the wire form of one tool invocation.
type ExecuteRequest struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ExecuteResponse is the wire form of one observation.
type ExecuteResponse struct {
	Observation string `json:"observation"`
	Status      string `json:"status"`
	Truncated   bool   `json:"truncated"`
}

type healthResponse struct {
	Status        string   `json:"status"`
	Tools         []string `json:"tools"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server is shutting down"})
		return
	}
	s.inFlightReqs.Add(1)
	s.shutdownMu.RUnlock()
	defer s.inFlightReqs.Done()

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	requestID, _ := gonanoid.New()
	ctx := tracing.WithRequestID(r.Context(), requestID)
	logger := tracing.PropagateToLogger(ctx, s.logger)

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug().Err(err).Msg("Malformed execute request")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tool_name is required"})
		return
	}

	start := time.Now()
	obs, err := s.Dispatch(ctx, bench.ToolInvocation{
		Name:      req.ToolName,
		Arguments: req.Arguments,
	})
	if err != nil {
		// Only caller cancellation reaches here; the client is gone.
		logger.Debug().Err(err).Str("tool", req.ToolName).Msg("Request cancelled")
		writeJSON(w, http.StatusRequestTimeout, errorResponse{Error: err.Error()})
		return
	}

	logger.Debug().
		Str("tool", req.ToolName).
		Str("status", string(obs.Status)).
		Dur("duration", time.Since(start)).
		Msg("Execute request served")

	w.Header().Set("X-Request-ID", requestID)
	writeJSON(w, http.StatusOK, ExecuteResponse{
		Observation: obs.Text,
		Status:      string(obs.Status),
		Truncated:   obs.Truncated,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Tools:         s.Tools(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
