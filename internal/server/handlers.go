package server

import (
	"net/http"
	"strconv"

	"github.com/x3na-dev/x3na/internal/market"
)

// roundResponse is the wire form of a round plus its derived phase.
type roundResponse struct {
	ID         string `json:"id"`
	Metadata   string `json:"metadata,omitempty"`
	StartTime  int64  `json:"start_time"`
	LockTime   int64  `json:"lock_time"`
	CloseTime  int64  `json:"close_time"`
	LockPrice  int64  `json:"lock_price"`
	ClosePrice int64  `json:"close_price"`
	BullTotal  int64  `json:"bull_total"`
	BearTotal  int64  `json:"bear_total"`
	RewardPool int64  `json:"reward_pool"`
	Resolved   bool   `json:"resolved"`
	Phase      string `json:"phase"`
}

func toRoundResponse(r *market.Round, phase market.Phase) roundResponse {
	return roundResponse{
		ID:         r.ID,
		Metadata:   r.Metadata,
		StartTime:  r.StartTime,
		LockTime:   r.LockTime,
		CloseTime:  r.CloseTime,
		LockPrice:  r.LockPrice,
		ClosePrice: r.ClosePrice,
		BullTotal:  r.BullTotal,
		BearTotal:  r.BearTotal,
		RewardPool: r.RewardPool,
		Resolved:   r.Resolved,
		Phase:      phase.String(),
	}
}

// ---------------------------------------------------------------------------
// Operator endpoints
// ---------------------------------------------------------------------------

type startRoundRequest struct {
	ID             string `json:"id"`
	BetWindowSecs  int64  `json:"bet_window_secs"`
	WaitWindowSecs int64  `json:"wait_window_secs"`
	Metadata       string `json:"metadata"`
}

func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	var req startRoundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	round, err := s.engine.StartRound(r.Context(), callerKey(r), req.ID, req.BetWindowSecs, req.WaitWindowSecs, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoundResponse(round, market.PhaseOpen))
}

type priceRequest struct {
	Price int64 `json:"price"`
}

func (s *Server) handleLockRound(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.engine.LockRound(r.Context(), callerKey(r), r.PathValue("id"), req.Price); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

func (s *Server) handleResolveRound(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.engine.ResolveRound(r.Context(), callerKey(r), r.PathValue("id"), req.Price); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

type settleRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (s *Server) handleBatchSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	settled, err := s.engine.BatchSettle(r.Context(), callerKey(r), r.PathValue("id"), req.From, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"settled": settled})
}

type resolveAndSettleRequest struct {
	Price int64 `json:"price"`
	From  int   `json:"from"`
	To    int   `json:"to"`
}

func (s *Server) handleResolveAndSettle(w http.ResponseWriter, r *http.Request) {
	var req resolveAndSettleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	settled, err := s.engine.ResolveAndSettle(r.Context(), callerKey(r), r.PathValue("id"), req.Price, req.From, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"settled": settled})
}

// ---------------------------------------------------------------------------
// Participant endpoints
// ---------------------------------------------------------------------------

type placeBetRequest struct {
	Position string `json:"position"`
	Amount   int64  `json:"amount"`
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	pos, ok := market.ParsePosition(req.Position)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "position must be bull or bear"})
		return
	}
	if err := s.engine.PlaceBet(r.Context(), callerKey(r), r.PathValue("id"), pos, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

type claimRequest struct {
	RoundIDs []string `json:"round_ids"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	total, err := s.engine.Claim(r.Context(), callerKey(r), req.RoundIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"total": total})
}

type referralRequest struct {
	Referrer string `json:"referrer"`
}

func (s *Server) handleRegisterReferral(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.engine.RegisterReferral(r.Context(), callerKey(r), req.Referrer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// ---------------------------------------------------------------------------
// Admin endpoints
// ---------------------------------------------------------------------------

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Suspend(r.Context(), callerKey(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resume(r.Context(), callerKey(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

type withdrawRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.engine.EmergencyWithdraw(r.Context(), callerKey(r), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

// updateParamsRequest carries optional parameter mutations. Only the fields
// present are applied, in struct order; the first failure stops the run.
type updateParamsRequest struct {
	BufferSecs      *int64  `json:"buffer_secs,omitempty"`
	MinBet          *int64  `json:"min_bet,omitempty"`
	MaxBet          *int64  `json:"max_bet,omitempty"`
	FlatDispatchFee *int64  `json:"flat_dispatch_fee,omitempty"`
	TreasuryFeeBps  *int64  `json:"treasury_fee_bps,omitempty"`
	Treasury        *string `json:"treasury,omitempty"`
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	var req updateParamsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	caller := callerKey(r)
	ctx := r.Context()

	if (req.MinBet == nil) != (req.MaxBet == nil) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "min_bet and max_bet must be set together"})
		return
	}

	var err error
	switch {
	case req.BufferSecs != nil:
		err = s.engine.SetBufferWindow(ctx, caller, *req.BufferSecs)
	}
	if err == nil && req.MinBet != nil {
		err = s.engine.SetBetBounds(ctx, caller, *req.MinBet, *req.MaxBet)
	}
	if err == nil && req.FlatDispatchFee != nil {
		err = s.engine.SetFlatDispatchFee(ctx, caller, *req.FlatDispatchFee)
	}
	if err == nil && req.TreasuryFeeBps != nil {
		err = s.engine.SetTreasuryFeeBps(ctx, caller, *req.TreasuryFeeBps)
	}
	if err == nil && req.Treasury != nil {
		err = s.engine.SetTreasury(ctx, caller, *req.Treasury)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.paramsResponse())
}

// ---------------------------------------------------------------------------
// Query endpoints
// ---------------------------------------------------------------------------

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	round, phase, err := s.engine.Round(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoundResponse(round, phase))
}

func (s *Server) handleGetWager(w http.ResponseWriter, r *http.Request) {
	wager, err := s.engine.Wager(r.PathValue("id"), r.PathValue("participant"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id":    wager.RoundID,
		"participant": wager.Participant,
		"position":    wager.Position.String(),
		"amount":      wager.Amount,
		"claimed":     wager.Claimed,
	})
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, _ := strconv.Atoi(q.Get("from"))
	to, _ := strconv.Atoi(q.Get("to"))
	participants, err := s.engine.Participants(r.PathValue("id"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id":     r.PathValue("id"),
		"from":         from,
		"participants": participants,
	})
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	amount, result, err := s.engine.Claimable(r.PathValue("id"), r.PathValue("participant"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amount": amount,
		"result": result.String(),
	})
}

func (s *Server) paramsResponse() map[string]any {
	p := s.engine.Params()
	return map[string]any{
		"buffer_secs":       p.BufferSecs,
		"min_bet":           p.MinBet,
		"max_bet":           p.MaxBet,
		"flat_dispatch_fee": p.FlatDispatchFee,
		"dispatch_fee_bps":  p.DispatchFeeBps,
		"treasury_fee_bps":  p.TreasuryFeeBps,
		"treasury":          string(p.Treasury),
	}
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.paramsResponse())
}
