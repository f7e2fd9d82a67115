// Package service exposes the settlement engine over a thin JSON HTTP
// surface. The engine itself owns no protocol; this layer is the
// surrounding application glue.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finpal/splitledger/internal/engine"
	"github.com/finpal/splitledger/internal/models"
	"github.com/finpal/splitledger/internal/storage"
)

// callerHeader carries the acting member's identifier. Authenticating
// that identifier is the surrounding application's job, not this
// engine's.
const callerHeader = "X-Caller-Id"

// SettlementService handles the settlement endpoints for a group.
type SettlementService struct {
	manager *engine.Manager
}

// NewSettlementService creates a SettlementService around the given
// engine manager.
func NewSettlementService(manager *engine.Manager) *SettlementService {
	return &SettlementService{manager: manager}
}

// Register attaches the settlement routes to mux.
func (s *SettlementService) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/groups/{id}/settlement", s.handleEvaluate)
	mux.HandleFunc("POST /v1/groups/{id}/settlement", s.handleCommit)
}

type settlementEdge struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type evaluationResponse struct {
	Outcome       string                     `json:"outcome"`
	ExpenseCount  int                        `json:"expense_count"`
	LastExpenseAt string                     `json:"last_expense_at,omitempty"`
	Balances      map[string]decimal.Decimal `json:"balances,omitempty"`
	Edges         []settlementEdge           `json:"edges,omitempty"`
	Paid          map[string]decimal.Decimal `json:"paid,omitempty"`
	Share         map[string]decimal.Decimal `json:"share,omitempty"`
	Residual      string                     `json:"residual,omitempty"`
	Warnings      []string                   `json:"warnings,omitempty"`
}

type commitResponse struct {
	Outcome  string                     `json:"outcome"`
	RunID    string                     `json:"run_id,omitempty"`
	Shares   map[string]decimal.Decimal `json:"shares,omitempty"`
	Warnings []string                   `json:"warnings,omitempty"`
}

func (s *SettlementService) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	eval, err := s.manager.Evaluate(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := evaluationResponse{
		Outcome:      string(eval.Outcome),
		ExpenseCount: eval.Fingerprint.ExpenseCount,
		Balances:     memberMap(eval.Balances),
		Paid:         memberMap(eval.Totals.Paid),
		Share:        memberMap(eval.Totals.Share),
		Warnings:     warningStrings(eval.Warnings),
	}
	if !eval.Fingerprint.LastExpenseAt.IsZero() {
		resp.LastExpenseAt = eval.Fingerprint.LastExpenseAt.UTC().Format(time.RFC3339Nano)
	}
	if eval.Residual.IsPositive() {
		resp.Residual = eval.Residual.StringFixed(2)
	}
	for _, e := range eval.Edges {
		resp.Edges = append(resp.Edges, settlementEdge{
			From:   string(e.From),
			To:     string(e.To),
			Amount: e.Amount,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *SettlementService) handleCommit(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	caller := models.Member(r.Header.Get(callerHeader))
	if caller == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": callerHeader + " header required"})
		return
	}

	result, err := s.manager.Commit(r.Context(), groupID, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commitResponse{
		Outcome:  string(result.Outcome),
		RunID:    result.RunID,
		Shares:   memberMap(result.Shares),
		Warnings: warningStrings(result.Warnings),
	})
}

// writeError maps the engine's error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		persistErr    *engine.PersistenceError
		checkpointErr *engine.CheckpointWriteError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.As(err, &persistErr):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": persistErr.Error(), "run_id": persistErr.RunID})
	case errors.As(err, &checkpointErr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": checkpointErr.Error(), "run_id": checkpointErr.RunID})
	default:
		slog.Error("settlement request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func memberMap(in map[models.Member]decimal.Decimal) map[string]decimal.Decimal {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for m, d := range in {
		out[string(m)] = d
	}
	return out
}

func warningStrings(warnings []engine.IntegrityWarning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}
