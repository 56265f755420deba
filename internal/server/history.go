package server

import (
	"net/http"
	"strconv"
)

// History handlers read persisted rows, not engine memory, so they reflect
// the durable state as of the last persistence flush.

func parseLimit(r *http.Request) int {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	var beforeStart *int64
	if v := r.URL.Query().Get("before_start"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "before_start must be a unix timestamp"})
			return
		}
		beforeStart = &n
	}
	rounds, err := s.history.ListRounds(r.Context(), parseLimit(r), beforeStart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

func (s *Server) handleRoundEvents(w http.ResponseWriter, r *http.Request) {
	var afterSeq *int64
	if v := r.URL.Query().Get("after_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "after_sequence must be an integer"})
			return
		}
		afterSeq = &n
	}
	events, err := s.history.RoundEvents(r.Context(), r.PathValue("id"), parseLimit(r), afterSeq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id": r.PathValue("id"),
		"events":   events,
	})
}

func (s *Server) handleParticipantWagers(w http.ResponseWriter, r *http.Request) {
	wagers, err := s.history.ParticipantWagers(r.Context(), r.PathValue("participant"), parseLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"participant": r.PathValue("participant"),
		"wagers":      wagers,
	})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.history.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
