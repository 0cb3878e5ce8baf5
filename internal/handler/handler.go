// Package handler содержит HTTP-обработчики API сервиса.
//
// Денежные суммы в запросах и ответах передаются десятичными строками,
// чтобы значения не проходили через плавающую точку клиента.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kmuriithi/sacco-ledger-system/internal/middleware"
	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
	"github.com/kmuriithi/sacco-ledger-system/internal/repository"
	"github.com/kmuriithi/sacco-ledger-system/internal/service"

	"github.com/google/uuid"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterMember(ctx context.Context, login, password, phone string) (int64, error)
	AuthenticateMember(ctx context.Context, login, password string) (int64, error)
	GetMember(ctx context.Context, id int64) (*model.Member, error)

	Deposit(ctx context.Context, memberID int64, amount money.Money, description string) error
	Withdraw(ctx context.Context, memberID int64, amount money.Money, description string) error
	Transfer(ctx context.Context, memberID int64, from, to model.AccountKind, amount money.Money) error
	BalanceSummary(ctx context.Context, memberID int64) (*model.BalanceSummary, error)
	Transactions(ctx context.Context, memberID int64, filter repository.TransactionFilter) ([]model.Transaction, error)

	ApplyLoan(ctx context.Context, memberID int64, amount money.Money, rate decimal.Decimal, durationMonths int) (int64, error)
	ReviewLoan(ctx context.Context, loanID, reviewerID int64, decision string) error
	WithdrawFromLoan(ctx context.Context, loanID, memberID int64, amount money.Money) error
	RepayLoan(ctx context.Context, loanID, memberID int64, amount money.Money, source model.AccountKind) error
	Loans(ctx context.Context, memberID int64) ([]model.Loan, error)
	PendingLoans(ctx context.Context) ([]model.Loan, error)
	Repayments(ctx context.Context, loanID, memberID int64) ([]model.LoanRepayment, error)

	BuyShares(ctx context.Context, memberID int64, amount, pricePerShare money.Money) error
	TransferShares(ctx context.Context, senderID, recipientID int64, units decimal.Decimal) error
	SharePosition(ctx context.Context, memberID int64) (*model.Share, error)
	DistributeDividends(ctx context.Context, batchID uuid.UUID, pool money.Money) (*service.DividendResult, error)
}

const timeFormat = time.RFC3339

// Handler реализует HTTP-обработчики API сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeError переводит ошибки ядра в HTTP-статусы. Неизвестные ошибки
// логируются и отдаются как 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	var status int
	switch {
	case errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidTransfer),
		errors.Is(err, service.ErrInvalidDecision),
		errors.Is(err, service.ErrInvalidPhone):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrInsufficientFunds),
		errors.Is(err, repository.ErrInsufficientShares),
		errors.Is(err, repository.ErrOverPayment):
		status = http.StatusPaymentRequired
	case errors.Is(err, repository.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrMemberNotFound),
		errors.Is(err, repository.ErrLoanNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrMemberExists),
		errors.Is(err, repository.ErrInvalidLoanState):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrRetryable):
		status = http.StatusServiceUnavailable
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		status = http.StatusInternalServerError
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetMemberIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

type registerRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// Register обрабатывает регистрацию нового участника.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.RegisterMember(r.Context(), req.Login, req.Password, req.Phone)
	if err != nil {
		h.writeError(w, err, "register member error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, id)
	w.WriteHeader(http.StatusOK)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию участника и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.AuthenticateMember(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, repository.ErrMemberNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login member error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, id)
	w.WriteHeader(http.StatusOK)
}

// Logout сбрасывает cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

// AdminOnly пропускает только участников с правами администратора.
func (h *Handler) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := memberID(w, r)
		if !ok {
			return
		}

		m, err := h.service.GetMember(r.Context(), id)
		if err != nil {
			h.writeError(w, err, "resolve member error", zap.Int64("memberID", id))
			return
		}
		if !m.IsAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type amountRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// Deposit зачисляет сумму на кошелёк текущего участника.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
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

	if err := h.service.Deposit(r.Context(), id, amount, req.Description); err != nil {
		h.writeError(w, err, "deposit error", zap.Int64("memberID", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Withdraw списывает сумму с кошелька текущего участника.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
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

	if err := h.service.Withdraw(r.Context(), id, amount, req.Description); err != nil {
		h.writeError(w, err, "withdraw error", zap.Int64("memberID", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type transferRequest struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      string `json:"amount"`
}

// Transfer переводит сумму между кошельком и накопительным счётом.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err = h.service.Transfer(r.Context(), id,
		model.AccountKind(req.FromAccount), model.AccountKind(req.ToAccount), amount)
	if err != nil {
		h.writeError(w, err, "transfer error", zap.Int64("memberID", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetBalance возвращает сводку балансов текущего участника.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.BalanceSummary(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get balance error", zap.Int64("memberID", id))
		return
	}

	h.writeJSON(w, summary)
}

type transactionResponse struct {
	ID          int64  `json:"id"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// GetTransactions возвращает страницу журнала операций текущего участника.
// Поддерживаются фильтры type и q (подстрока описания) и пагинация page/limit.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 100
	}

	filter := repository.TransactionFilter{
		Type:        model.TransactionType(q.Get("type")),
		Description: q.Get("q"),
		Limit:       limit,
		Offset:      (page - 1) * limit,
	}

	transactions, err := h.service.Transactions(r.Context(), id, filter)
	if err != nil {
		if filter.Type != "" && !filter.Type.Valid() {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.writeError(w, err, "get transactions error", zap.Int64("memberID", id))
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, transactionResponse{
			ID:          t.ID,
			Amount:      t.Amount.String(),
			Type:        string(t.Type),
			Description: t.Description,
			CreatedAt:   t.CreatedAt.Format(timeFormat),
		})
	}

	h.writeJSON(w, resp)
}
