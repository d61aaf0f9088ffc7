package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clubejota/clube/internal/domain"
)

// ─── Member API ─────────────────────────────────────────────────────────────
// GET  /api/accounts?email=             accounts registered under an e-mail
// GET  /api/members                     active members
// GET  /api/members/{id}                account summary
// GET  /api/members/{id}/transactions   history, newest first (?limit=)
// POST /api/members/{id}/activate       start membership
// POST /api/members/{id}/deactivate     end membership, forfeit balance
// POST /api/members/{id}/credit         {amount, description, cashback_rate?}
// POST /api/members/{id}/debit          {amount, description, qualifying}

type creditRequest struct {
	Amount       decimal.Decimal  `json:"amount"`
	Description  string           `json:"description"`
	CashbackRate *decimal.Decimal `json:"cashback_rate,omitempty"`
}

type debitRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Qualifying  bool            `json:"qualifying"`
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.ListMembers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if members == nil {
		members = []domain.MemberAccount{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"members": members,
		"count":   len(members),
	})
}

func (s *Server) handleFindAccounts(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email query parameter is required")
		return
	}
	accounts, err := s.ledger.FindByEmail(r.Context(), email)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.GetSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resp := map[string]interface{}{"account": acct}
	if next, at, ok := s.ledger.Tiers().Next(acct.Tier); ok && acct.IsMember {
		resp["next_tier"] = next
		resp["activities_to_next_tier"] = at - acct.QualifyingActivityCount
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 0)

	txs := []domain.Transaction{}
	for tx, err := range s.ledger.ListTransactions(r.Context(), id, limit) {
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		txs = append(txs, tx)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":   id,
		"transactions": txs,
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.Activate(r.Context(), chi.URLParam(r, "id"), ActorFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": acct})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.Deactivate(r.Context(), chi.URLParam(r, "id"), ActorFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": acct})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}
	rate := s.ledger.CashbackRate()
	if req.CashbackRate != nil {
		rate = *req.CashbackRate
	}

	res, err := s.ledger.Credit(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Description,
		domain.SourceManual, ActorFromContext(r.Context()), rate)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	var req debitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}

	res, err := s.ledger.Debit(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Description,
		req.Qualifying, ActorFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryInt reads a positive integer query parameter.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
