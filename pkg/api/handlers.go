package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dmarceau/agentrunner/pkg/agenterrors"
	"github.com/dmarceau/agentrunner/pkg/execution"
	"github.com/dmarceau/agentrunner/pkg/logging"
	"github.com/dmarceau/agentrunner/pkg/state"
)

// errorPayload is the wire form of a failed request
type errorPayload struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// errorResponse wraps an error payload the way clients expect it
type errorResponse struct {
	Error errorPayload `json:"error"`
}

// writeJSON encodes body with the given status
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError renders err through the taxonomy: a stable code, the
// user-facing message, and structured details when present
func writeError(w http.ResponseWriter, err error) {
	normalized := agenterrors.Normalize(err)
	writeJSON(w, statusForCode(normalized.Code), errorResponse{
		Error: errorPayload{
			Code:    string(normalized.Code),
			Message: agenterrors.UserMessage(normalized),
			Details: normalized.Details,
		},
	})
}

// writeNotFound renders a plain missing-resource answer for lookups
// that fall outside the execution error taxonomy
func writeNotFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error: errorPayload{Code: "NOT_FOUND", Message: message},
	})
}

// statusForCode maps a taxonomy code onto an HTTP status
func statusForCode(code agenterrors.Code) int {
	switch code {
	case agenterrors.CodeAgentNotFound:
		return http.StatusNotFound
	case agenterrors.CodeValidation:
		return http.StatusBadRequest
	case agenterrors.CodeAgentUnavailable:
		return http.StatusServiceUnavailable
	case agenterrors.CodeExecutionTimeout:
		return http.StatusGatewayTimeout
	case agenterrors.CodeNetwork, agenterrors.CodeWebhook:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleListAgents returns every registered agent
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.List())
}

// handleGetAgent returns one agent's configuration
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	cfg, err := s.deps.Registry.Lookup(agentID)
	if err != nil {
		writeError(w, agenterrors.Wrap(agenterrors.CodeAgentNotFound, "agent "+agentID+" is not registered", err))
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleExecuteAgent submits a prompt to an agent and answers with the
// resulting execution record
func (s *Server) handleExecuteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	var input execution.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, agenterrors.Wrap(agenterrors.CodeValidation, "request body is not valid JSON", err))
		return
	}

	exec, err := s.deps.Executor.ExecuteAgent(r.Context(), agentID, input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, exec)
}

// handleAgentHistory returns an agent's executions, newest first. The
// stored history is hydrated on the first read after startup.
func (s *Server) handleAgentHistory(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	if err := s.deps.Container.LoadHistory(r.Context(), agentID); err != nil {
		s.logger.Error("failed to load history", logging.F("agent_id", agentID), logging.F("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.deps.Container.History(agentID))
}

// handleClearHistory removes an agent's executions from memory and
// storage, cancelling any in-flight polls
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	if err := s.deps.Container.ClearHistory(r.Context(), agentID); err != nil {
		s.logger.Error("failed to clear history", logging.F("agent_id", agentID), logging.F("error", err.Error()))
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetExecution looks up one execution by id across all agents
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	exec, err := s.deps.Container.Find(id)
	if err != nil {
		if errors.Is(err, state.ErrExecutionNotFound) {
			writeNotFound(w, "execution "+id+" not found")
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

// handleExportHistory returns every stored key as one JSON document
func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Store.Export(r.Context())
	if err != nil {
		s.logger.Error("history export failed", logging.F("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleImportHistory restores keys from a document produced by export
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, agenterrors.Wrap(agenterrors.CodeValidation, "request body is not a JSON object", err))
		return
	}

	imported, skipped, err := s.deps.Store.Import(r.Context(), doc)
	if err != nil {
		s.logger.Error("history import failed", logging.F("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"imported": imported,
		"skipped":  skipped,
	})
}

// handleGetPreferences returns the stored preferences object
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.deps.Store.LoadPreferences(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}

// handlePutPreferences replaces the stored preferences object
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, agenterrors.Wrap(agenterrors.CodeValidation, "request body is not a JSON object", err))
		return
	}

	if err := s.deps.Store.SavePreferences(r.Context(), prefs); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}
