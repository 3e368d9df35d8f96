// Package api provides the HTTP handlers for creating pools, moving them
// through their lifecycle and querying their state.
//
// All monetary values use shopspring/decimal and travel as JSON strings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/model"
	"github.com/memepool/pool-engine/internal/params"
	"github.com/memepool/pool-engine/internal/pool"
)

// CallerHeader carries the hex identity of whoever is calling. Signature
// verification happens upstream of this service.
const CallerHeader = "X-Caller"

var (
	errMissingCaller = errors.New("X-Caller header must be a hex address")
	errBadPoolID     = errors.New("pool id must be a non-negative integer")
)

// Service exposes a pool.Engine over HTTP.
type Service struct {
	engine *pool.Engine
}

// NewService creates the HTTP service.
func NewService(engine *pool.Engine) *Service {
	return &Service{engine: engine}
}

// Routes mounts every pool endpoint on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/pools", s.ListPools)
	r.Post("/pools", s.CreatePool)

	r.Route("/pools/{poolID}", func(r chi.Router) {
		r.Get("/", s.GetPool)
		r.Get("/me", s.GetMyStatus)
		r.Get("/assignments", s.GetAssignments)
		r.Get("/leaderboard", s.GetLeaderboard)
		r.Get("/ledger", s.GetLedger)

		r.Post("/join", s.Join)
		r.Post("/execute", s.ExecuteSwaps)
		r.Post("/declare", s.DeclareWinner)
		r.Post("/claim", s.Claim)
		r.Post("/refund", s.Refund)
		r.Post("/cancel", s.Cancel)
		r.Post("/emergency-withdraw", s.EmergencyWithdraw)
		r.Post("/reward", s.ClaimExecutorReward)
	})

	r.Get("/identities/{identity}/ledger", s.GetHistory)
}

// --- Request/Response types ---

// JoinRequest is the JSON body for POST /pools/{poolID}/join.
type JoinRequest struct {
	Amount decimal.Decimal `json:"amount"` // must equal the entry amount
}

// ExecuteResponse is returned by POST /pools/{poolID}/execute.
type ExecuteResponse struct {
	Assignments    []model.Assignment `json:"assignments"`
	ExecutorReward decimal.Decimal    `json:"executor_reward"`
	RewardPending  bool               `json:"reward_pending"`
}

// CountResponse wraps the registry size.
type CountResponse struct {
	Count uint64              `json:"count"`
	Pools []model.PoolSummary `json:"pools"`
}

// --- HTTP Handlers ---

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.engine.ListPools(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: uint64(len(pools)), Pools: pools})
}

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req params.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	id, err := s.engine.CreatePool(ctx, caller, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	summary, err := s.engine.GetPoolSummary(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDFrom(w, r)
	if !ok {
		return
	}
	summary, err := s.engine.GetPoolSummary(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Join handles POST /api/v1/pools/{poolID}/join
func (s *Service) Join(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := poolAndCaller(w, r)
	if !ok {
		return
	}
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.engine.Join(ctx, id, caller, req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	status, err := s.engine.GetMyStatus(ctx, id, caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ExecuteSwaps handles POST /api/v1/pools/{poolID}/execute
// Anyone may call once the join window closes; the caller earns the
// executor reward. The swaps stand even if the reward could not be paid,
// so that case is still a 200 with reward_pending set.
func (s *Service) ExecuteSwaps(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := poolAndCaller(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	p, err := s.engine.ExecuteSwaps(ctx, id, caller)
	if err != nil && (p == nil || !errors.Is(err, pool.ErrTransferFailed)) {
		writeEngineError(w, err)
		return
	}
	if err != nil {
		slog.Warn("executor reward pending", "pool", id, "executor", caller.Hex(), "err", err)
	}
	assignments, err := s.engine.GetAssignments(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExecuteResponse{
		Assignments:    assignments,
		ExecutorReward: p.ExecutorReward,
		RewardPending:  p.RewardPending,
	})
}

// ClaimExecutorReward handles POST /api/v1/pools/{poolID}/reward
// (executor only, after a failed reward transfer)
func (s *Service) ClaimExecutorReward(w http.ResponseWriter, r *http.Request) {
	s.payout(w, r, s.engine.ClaimExecutorReward)
}

// DeclareWinner handles POST /api/v1/pools/{poolID}/declare
func (s *Service) DeclareWinner(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := poolAndCaller(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.engine.RecordPricesAndDeclareWinner(ctx, id, caller); err != nil {
		writeEngineError(w, err)
		return
	}
	board, err := s.engine.GetLeaderboard(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// Claim handles POST /api/v1/pools/{poolID}/claim
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	s.payout(w, r, s.engine.Claim)
}

// Refund handles POST /api/v1/pools/{poolID}/refund
func (s *Service) Refund(w http.ResponseWriter, r *http.Request) {
	s.payout(w, r, s.engine.Refund)
}

// Cancel handles POST /api/v1/pools/{poolID}/cancel (creator only)
func (s *Service) Cancel(w http.ResponseWriter, r *http.Request) {
	s.payout(w, r, s.engine.CancelPool)
}

// EmergencyWithdraw handles POST /api/v1/pools/{poolID}/emergency-withdraw
// (creator only)
func (s *Service) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	s.payout(w, r, s.engine.EmergencyWithdraw)
}

type payoutFunc func(ctx context.Context, id uint64, caller common.Address) (*pool.Receipt, error)

func (s *Service) payout(w http.ResponseWriter, r *http.Request, fn payoutFunc) {
	id, caller, ok := poolAndCaller(w, r)
	if !ok {
		return
	}
	rc, err := fn(r.Context(), id, caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// GetMyStatus handles GET /api/v1/pools/{poolID}/me
func (s *Service) GetMyStatus(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := poolAndCaller(w, r)
	if !ok {
		return
	}
	status, err := s.engine.GetMyStatus(r.Context(), id, caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetAssignments handles GET /api/v1/pools/{poolID}/assignments
// Hidden until the join deadline.
func (s *Service) GetAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDFrom(w, r)
	if !ok {
		return
	}
	list, err := s.engine.GetAssignments(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetLeaderboard handles GET /api/v1/pools/{poolID}/leaderboard
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDFrom(w, r)
	if !ok {
		return
	}
	board, err := s.engine.GetLeaderboard(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// GetLedger handles GET /api/v1/pools/{poolID}/ledger
// Returns every value movement recorded for the pool.
func (s *Service) GetLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDFrom(w, r)
	if !ok {
		return
	}
	entries, err := s.engine.Ledger(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetHistory handles GET /api/v1/identities/{identity}/ledger
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "identity")
	if !common.IsHexAddress(raw) {
		writeError(w, "identity must be a hex address", http.StatusBadRequest)
		return
	}
	entries, err := s.engine.History(r.Context(), common.HexToAddress(raw))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- helpers ---

func callerFrom(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if !common.IsHexAddress(raw) {
		writeError(w, errMissingCaller.Error(), http.StatusUnauthorized)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func poolIDFrom(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil {
		writeError(w, errBadPoolID.Error(), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func poolAndCaller(w http.ResponseWriter, r *http.Request) (uint64, common.Address, bool) {
	id, ok := poolIDFrom(w, r)
	if !ok {
		return 0, common.Address{}, false
	}
	caller, ok := callerFrom(w, r)
	if !ok {
		return 0, common.Address{}, false
	}
	return id, caller, true
}

// writeEngineError maps an engine error to its HTTP status.
func writeEngineError(w http.ResponseWriter, err error) {
	var status int
	switch pool.Classify(err) {
	case pool.CategoryNotFound:
		status = http.StatusNotFound
	case pool.CategoryAuthorization:
		status = http.StatusForbidden
	case pool.CategoryTemporal:
		status = http.StatusConflict
	case pool.CategoryValue:
		status = http.StatusBadRequest
	case pool.CategoryExternal:
		status = http.StatusBadGateway
	default:
		slog.Error("internal error", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
