package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "portfolio-sentry",
	})
}

// handleGetPortfolio returns the account's latest portfolio snapshot.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	snapshot, err := s.monitor.GetSnapshot(accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotInitialized) {
			s.writeError(w, http.StatusNotFound, "no snapshot yet - start the monitor first")
			return
		}
		s.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to load snapshot")
		s.writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}

type startMonitorRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// handleStartMonitor starts continuous monitoring for the account. The
// optional interval_seconds overrides the configured cycle interval.
func (s *Server) handleStartMonitor(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req startMonitorRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := s.monitor.StartMonitor(accountID, time.Duration(req.IntervalSeconds)*time.Second); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			s.writeError(w, http.StatusConflict, "monitor already running")
			return
		}
		s.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to start monitor")
		s.writeError(w, http.StatusInternalServerError, "failed to start monitor")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"account_id": accountID,
		"state":      s.monitor.MonitorState(accountID).String(),
	})
}

// handleStopMonitor stops monitoring for the account. Stopping an idle
// monitor succeeds with no effect.
func (s *Server) handleStopMonitor(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	s.monitor.StopMonitor(accountID)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"account_id": accountID,
		"state":      s.monitor.MonitorState(accountID).String(),
	})
}

// handleGetAlerts returns the account's recent alerts. The cutoff comes
// from `since` (RFC3339) or `hours`, defaulting to the last 24 hours.
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	lookback := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		lookback = time.Since(since)
	} else if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			lookback = time.Duration(parsed) * time.Hour
		}
	}

	alerts, err := s.monitor.GetRecentAlerts(accountID, lookback)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to load alerts")
		s.writeError(w, http.StatusInternalServerError, "failed to load alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"since":      time.Now().Add(-lookback),
		"alerts":     alerts,
	})
}

// handleGetReallocations returns capital reallocation suggestions based on
// the latest snapshot.
func (s *Server) handleGetReallocations(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	suggestions, err := s.monitor.GetReallocationSuggestions(accountID, nil)
	if err != nil {
		if errors.Is(err, domain.ErrNotInitialized) {
			s.writeError(w, http.StatusNotFound, "no snapshot yet - start the monitor first")
			return
		}
		s.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to build reallocation suggestions")
		s.writeError(w, http.StatusInternalServerError, "failed to build reallocation suggestions")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":  accountID,
		"suggestions": suggestions,
	})
}

// handleGetTrades returns the account's trade execution audit trail.
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	records, err := s.audit.ListByAccount(accountID, limit)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to load trade records")
		s.writeError(w, http.StatusInternalServerError, "failed to load trade records")
		return
	}
	if records == nil {
		records = []domain.TradeExecutionRecord{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"trades":     records,
	})
}

// handleRebalancerStats returns the account's daily rebalancer counters.
func (s *Server) handleRebalancerStats(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	s.writeJSON(w, http.StatusOK, s.rebalancer.Stats(accountID))
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

// handleSetRebalancerMode switches one account between dry-run and live
// execution. Other accounts keep their own mode.
func (s *Server) handleSetRebalancerMode(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var mode domain.ExecutionMode
	switch req.Mode {
	case string(domain.ModeLive):
		mode = domain.ModeLive
	case string(domain.ModeDryRun):
		mode = domain.ModeDryRun
	default:
		s.writeError(w, http.StatusBadRequest, "mode must be 'dry_run' or 'live'")
		return
	}

	s.rebalancer.SetMode(accountID, mode)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"account_id": accountID,
		"mode":       string(mode),
	})
}

type debateRequest struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
}

// handleDebate runs the three-way stance debate for one held position.
func (s *Server) handleDebate(w http.ResponseWriter, r *http.Request) {
	var req debateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" || req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, "account_id and symbol are required")
		return
	}

	decision, err := s.monitor.DebatePosition(r.Context(), req.AccountID, req.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotInitialized) {
			s.writeError(w, http.StatusNotFound, "no snapshot yet - start the monitor first")
			return
		}
		if errors.Is(err, domain.ErrDataUnavailable) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Debate failed")
		s.writeError(w, http.StatusInternalServerError, "debate failed")
		return
	}

	s.writeJSON(w, http.StatusOK, decision)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
