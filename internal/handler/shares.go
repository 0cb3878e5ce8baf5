package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kmuriithi/sacco-ledger-system/internal/money"
)

type buySharesRequest struct {
	Amount        string `json:"amount"`
	PricePerShare string `json:"price_per_share"`
}

// BuyShares покупает паи на указанную сумму с кошелька текущего участника.
func (h *Handler) BuyShares(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	var req buySharesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	price, err := money.Parse(req.PricePerShare)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.BuyShares(r.Context(), id, amount, price); err != nil {
		h.writeError(w, err, "buy shares error", zap.Int64("memberID", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type transferSharesRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Shares      string `json:"shares"`
}

// TransferShares передаёт паи текущего участника другому участнику.
func (h *Handler) TransferShares(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	var req transferSharesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	units, err := decimal.NewFromString(req.Shares)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.TransferShares(r.Context(), id, req.RecipientID, units); err != nil {
		h.writeError(w, err, "transfer shares error",
			zap.Int64("memberID", id), zap.Int64("recipientID", req.RecipientID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type shareResponse struct {
	SharesOwned     string `json:"shares_owned"`
	TotalInvestment string `json:"total_investment"`
}

// GetShares возвращает паи текущего участника.
func (h *Handler) GetShares(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	share, err := h.service.SharePosition(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get shares error", zap.Int64("memberID", id))
		return
	}

	h.writeJSON(w, shareResponse{
		SharesOwned:     share.Units().StringFixed(2),
		TotalInvestment: share.TotalInvestment.String(),
	})
}

type dividendsRequest struct {
	Pool    string `json:"pool"`
	BatchID string `json:"batch_id,omitempty"`
}

// DistributeDividends запускает раздачу дивидендов (только администратор).
// Передача того же batch_id повторяет прерванную раздачу без двойных выплат.
func (h *Handler) DistributeDividends(w http.ResponseWriter, r *http.Request) {
	var req dividendsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pool, err := money.Parse(req.Pool)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	batchID := uuid.Nil
	if req.BatchID != "" {
		batchID, err = uuid.Parse(req.BatchID)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	result, err := h.service.DistributeDividends(r.Context(), batchID, pool)
	if err != nil {
		h.writeError(w, err, "distribute dividends error")
		return
	}

	h.writeJSON(w, result)
}
