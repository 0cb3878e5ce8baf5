package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
	"github.com/kmuriithi/sacco-ledger-system/internal/service"
)

func loanIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

type applyLoanRequest struct {
	Amount         string `json:"amount"`
	InterestRate   string `json:"interest_rate"`
	DurationMonths int    `json:"duration_months"`
}

// ApplyLoan создаёт заявку на заём от текущего участника.
func (h *Handler) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	var req applyLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rate, err := decimal.NewFromString(req.InterestRate)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	loanID, err := h.service.ApplyLoan(r.Context(), id, amount, rate, req.DurationMonths)
	if err != nil {
		h.writeError(w, err, "apply loan error", zap.Int64("memberID", id))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int64{"id": loanID})
}

type loanResponse struct {
	ID               int64  `json:"id"`
	Amount           string `json:"amount"`
	RemainingBalance string `json:"remaining_balance"`
	TotalWithdrawn   string `json:"total_withdrawn"`
	InterestRate     string `json:"interest_rate"`
	DurationMonths   int    `json:"duration_months"`
	Status           string `json:"status"`
	RepaymentStatus  string `json:"repayment_status,omitempty"`
	Interest         string `json:"interest,omitempty"`
	CreatedAt        string `json:"created_at"`
}

func toLoanResponse(l model.Loan) loanResponse {
	resp := loanResponse{
		ID:               l.ID,
		Amount:           l.Amount.String(),
		RemainingBalance: l.RemainingBalance.String(),
		TotalWithdrawn:   l.TotalWithdrawn.String(),
		InterestRate:     l.InterestRate.String(),
		DurationMonths:   l.DurationMonths,
		Status:           string(l.Status),
		CreatedAt:        l.CreatedAt.Format(timeFormat),
	}

	if l.Status == model.LoanStatusApproved {
		resp.RepaymentStatus = string(l.RepaymentStatus)
	}

	// Справочный расчёт простых процентов, состояние не меняет.
	if interest, err := service.CalculateInterest(l.Amount, l.InterestRate, l.DurationMonths); err == nil {
		resp.Interest = interest.String()
	}

	return resp
}

// GetLoans возвращает займы текущего участника.
func (h *Handler) GetLoans(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	loans, err := h.service.Loans(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get loans error", zap.Int64("memberID", id))
		return
	}

	if len(loans) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		resp = append(resp, toLoanResponse(l))
	}

	h.writeJSON(w, resp)
}

type repayLoanRequest struct {
	Amount  string `json:"amount"`
	Account string `json:"account"`
}

// RepayLoan погашает часть займа с выбранного счёта текущего участника.
func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	loanID, ok := loanIDParam(w, r)
	if !ok {
		return
	}

	var req repayLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err = h.service.RepayLoan(r.Context(), loanID, id, amount, model.AccountKind(req.Account))
	if err != nil {
		h.writeError(w, err, "repay loan error",
			zap.Int64("memberID", id), zap.Int64("loanID", loanID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// WithdrawFromLoan выдаёт часть одобренного займа на кошелёк участника.
func (h *Handler) WithdrawFromLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	loanID, ok := loanIDParam(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err = h.service.WithdrawFromLoan(r.Context(), loanID, id, amount)
	if err != nil {
		h.writeError(w, err, "withdraw from loan error",
			zap.Int64("memberID", id), zap.Int64("loanID", loanID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type repaymentResponse struct {
	ID         int64  `json:"id"`
	AmountPaid string `json:"amount_paid"`
	PaidAt     string `json:"paid_at"`
}

// GetRepayments возвращает историю платежей по займу текущего участника.
func (h *Handler) GetRepayments(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	loanID, ok := loanIDParam(w, r)
	if !ok {
		return
	}

	repayments, err := h.service.Repayments(r.Context(), loanID, id)
	if err != nil {
		h.writeError(w, err, "get repayments error",
			zap.Int64("memberID", id), zap.Int64("loanID", loanID))
		return
	}

	if len(repayments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]repaymentResponse, 0, len(repayments))
	for _, p := range repayments {
		resp = append(resp, repaymentResponse{
			ID:         p.ID,
			AmountPaid: p.AmountPaid.String(),
			PaidAt:     p.PaidAt.Format(timeFormat),
		})
	}

	h.writeJSON(w, resp)
}

type pendingLoanResponse struct {
	loanResponse
	MemberID int64 `json:"member_id"`
}

// GetPendingLoans возвращает заявки, ожидающие решения администратора.
func (h *Handler) GetPendingLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.PendingLoans(r.Context())
	if err != nil {
		h.writeError(w, err, "get pending loans error")
		return
	}

	if len(loans) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]pendingLoanResponse, 0, len(loans))
	for _, l := range loans {
		resp = append(resp, pendingLoanResponse{
			loanResponse: toLoanResponse(l),
			MemberID:     l.MemberID,
		})
	}

	h.writeJSON(w, resp)
}

type reviewLoanRequest struct {
	Decision string `json:"decision"`
}

// ReviewLoan фиксирует решение администратора по заявке.
func (h *Handler) ReviewLoan(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := memberID(w, r)
	if !ok {
		return
	}

	loanID, ok := loanIDParam(w, r)
	if !ok {
		return
	}

	var req reviewLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ReviewLoan(r.Context(), loanID, reviewerID, req.Decision); err != nil {
		h.writeError(w, err, "review loan error",
			zap.Int64("reviewerID", reviewerID), zap.Int64("loanID", loanID))
		return
	}

	w.WriteHeader(http.StatusOK)
}
