package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kmuriithi/sacco-ledger-system/internal/middleware"
	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
	"github.com/kmuriithi/sacco-ledger-system/internal/repository"
	"github.com/kmuriithi/sacco-ledger-system/internal/service"
)

// stubService — заглушка бизнес-логики с настраиваемыми ответами.
type stubService struct {
	member    *model.Member
	memberErr error

	registerID  int64
	registerErr error
	authID      int64
	authErr     error

	depositErr     error
	depositAmount  money.Money
	withdrawErr    error
	transferErr    error
	summary        *model.BalanceSummary
	summaryErr     error
	transactions   []model.Transaction
	transactionErr error

	applyLoanID  int64
	applyLoanErr error
	reviewErr    error
	loanWdrErr   error
	repayErr     error
	loans        []model.Loan
	pending      []model.Loan
	repayments   []model.LoanRepayment

	buySharesErr      error
	transferSharesErr error
	share             *model.Share
	dividendResult    *service.DividendResult
	dividendErr       error
}

func (s *stubService) RegisterMember(_ context.Context, _, _, _ string) (int64, error) {
	return s.registerID, s.registerErr
}

func (s *stubService) AuthenticateMember(_ context.Context, _, _ string) (int64, error) {
	return s.authID, s.authErr
}

func (s *stubService) GetMember(_ context.Context, _ int64) (*model.Member, error) {
	return s.member, s.memberErr
}

func (s *stubService) Deposit(_ context.Context, _ int64, amount money.Money, _ string) error {
	s.depositAmount = amount
	return s.depositErr
}

func (s *stubService) Withdraw(_ context.Context, _ int64, _ money.Money, _ string) error {
	return s.withdrawErr
}

func (s *stubService) Transfer(_ context.Context, _ int64, _, _ model.AccountKind, _ money.Money) error {
	return s.transferErr
}

func (s *stubService) BalanceSummary(_ context.Context, _ int64) (*model.BalanceSummary, error) {
	return s.summary, s.summaryErr
}

func (s *stubService) Transactions(_ context.Context, _ int64, _ repository.TransactionFilter) ([]model.Transaction, error) {
	return s.transactions, s.transactionErr
}

func (s *stubService) ApplyLoan(_ context.Context, _ int64, _ money.Money, _ decimal.Decimal, _ int) (int64, error) {
	return s.applyLoanID, s.applyLoanErr
}

func (s *stubService) ReviewLoan(_ context.Context, _, _ int64, _ string) error {
	return s.reviewErr
}

func (s *stubService) WithdrawFromLoan(_ context.Context, _, _ int64, _ money.Money) error {
	return s.loanWdrErr
}

func (s *stubService) RepayLoan(_ context.Context, _, _ int64, _ money.Money, _ model.AccountKind) error {
	return s.repayErr
}

func (s *stubService) Loans(_ context.Context, _ int64) ([]model.Loan, error) {
	return s.loans, nil
}

func (s *stubService) PendingLoans(_ context.Context) ([]model.Loan, error) {
	return s.pending, nil
}

func (s *stubService) Repayments(_ context.Context, _, _ int64) ([]model.LoanRepayment, error) {
	return s.repayments, nil
}

func (s *stubService) BuyShares(_ context.Context, _ int64, _, _ money.Money) error {
	return s.buySharesErr
}

func (s *stubService) TransferShares(_ context.Context, _, _ int64, _ decimal.Decimal) error {
	return s.transferSharesErr
}

func (s *stubService) SharePosition(_ context.Context, _ int64) (*model.Share, error) {
	return s.share, nil
}

func (s *stubService) DistributeDividends(_ context.Context, _ uuid.UUID, _ money.Money) (*service.DividendResult, error) {
	return s.dividendResult, s.dividendErr
}

type testServer struct {
	router http.Handler
	auth   *middleware.AuthMiddleware
}

func newTestServer(svc Service) *testServer {
	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, zap.NewNop(), auth)
	return &testServer{router: h.SetupRouter(), auth: auth}
}

func (ts *testServer) request(t *testing.T, method, target, body string, memberID int64) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if memberID != 0 {
		rec := httptest.NewRecorder()
		ts.auth.SetAuthCookie(rec, memberID)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestDepositHandler(t *testing.T) {
	svc := &stubService{}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/account/deposit", `{"amount": "100.00"}`, 1)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if svc.depositAmount.Cents() != 10000 {
		t.Fatalf("deposit amount = %d cents, want 10000", svc.depositAmount.Cents())
	}
}

func TestDepositHandler_Unauthorized(t *testing.T) {
	ts := newTestServer(&stubService{})

	w := ts.request(t, http.MethodPost, "/api/account/deposit", `{"amount": "100.00"}`, 0)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestDepositHandler_BadAmount(t *testing.T) {
	ts := newTestServer(&stubService{})

	for _, amount := range []string{"abc", "-5.00", "0"} {
		w := ts.request(t, http.MethodPost, "/api/account/deposit", `{"amount": "`+amount+`"}`, 1)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("amount %q: status = %d, want 400", amount, w.Code)
		}
	}
}

func TestWithdrawHandler_InsufficientFunds(t *testing.T) {
	svc := &stubService{withdrawErr: repository.ErrInsufficientFunds}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/account/withdraw", `{"amount": "100.00"}`, 1)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
}

func TestTransferHandler_InvalidAccounts(t *testing.T) {
	svc := &stubService{transferErr: service.ErrInvalidTransfer}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/account/transfer",
		`{"from_account": "wallet", "to_account": "wallet", "amount": "10.00"}`, 1)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetBalanceHandler(t *testing.T) {
	svc := &stubService{summary: &model.BalanceSummary{Wallet: 150.50, Savings: 200, Total: 350.50}}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodGet, "/api/account/balance", "", 1)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got model.BalanceSummary
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Total != 350.50 {
		t.Fatalf("total = %v, want 350.50", got.Total)
	}
}

func TestGetTransactionsHandler_Empty(t *testing.T) {
	ts := newTestServer(&stubService{})

	w := ts.request(t, http.MethodGet, "/api/transactions", "", 1)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestRegisterHandler(t *testing.T) {
	svc := &stubService{registerID: 7}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/user/register",
		`{"login": "alice", "password": "secret", "phone": "+254712345678"}`, 0)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(w.Result().Cookies()) == 0 {
		t.Fatal("auth cookie must be set after registration")
	}
}

func TestRegisterHandler_Conflict(t *testing.T) {
	svc := &stubService{registerErr: repository.ErrMemberExists}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/user/register",
		`{"login": "alice", "password": "secret", "phone": "+254712345678"}`, 0)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestLoginHandler_WrongPassword(t *testing.T) {
	svc := &stubService{authErr: service.ErrInvalidCredentials}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/user/login", `{"login": "alice", "password": "bad"}`, 0)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestApplyLoanHandler(t *testing.T) {
	svc := &stubService{applyLoanID: 42}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/loans",
		`{"amount": "5000.00", "interest_rate": "12.5", "duration_months": 12}`, 1)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 42 {
		t.Fatalf("id = %d, want 42", resp.ID)
	}
}

func TestRepayLoanHandler_OverPayment(t *testing.T) {
	svc := &stubService{repayErr: repository.ErrOverPayment}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/loans/1/repay",
		`{"amount": "9999.00", "account": "wallet"}`, 1)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
}

func TestReviewLoanHandler_Conflict(t *testing.T) {
	svc := &stubService{
		member:    &model.Member{ID: 2, IsAdmin: true},
		reviewErr: repository.ErrInvalidLoanState,
	}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/admin/loans/1/review", `{"decision": "approve"}`, 2)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestAdminRoutes_Forbidden(t *testing.T) {
	svc := &stubService{member: &model.Member{ID: 1}}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/admin/dividends", `{"pool": "1000.00"}`, 1)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestDistributeDividendsHandler(t *testing.T) {
	batchID := uuid.New()
	svc := &stubService{
		member:         &model.Member{ID: 2, IsAdmin: true},
		dividendResult: &service.DividendResult{BatchID: batchID, Paid: 3, Skipped: 1},
	}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/admin/dividends", `{"pool": "1000.00"}`, 2)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got service.DividendResult
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.BatchID != batchID || got.Paid != 3 || got.Skipped != 1 {
		t.Fatalf("result = %+v, want batch %s paid 3 skipped 1", got, batchID)
	}
}

func TestTransferSharesHandler_Insufficient(t *testing.T) {
	svc := &stubService{transferSharesErr: repository.ErrInsufficientShares}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodPost, "/api/shares/transfer",
		`{"recipient_id": 2, "shares": "10.00"}`, 1)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
}

func TestGetSharesHandler(t *testing.T) {
	svc := &stubService{share: &model.Share{MemberID: 1, UnitsOwned: 550, TotalInvestment: 27500}}
	ts := newTestServer(svc)

	w := ts.request(t, http.MethodGet, "/api/shares", "", 1)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got struct {
		SharesOwned     string `json:"shares_owned"`
		TotalInvestment string `json:"total_investment"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.SharesOwned != "5.50" {
		t.Fatalf("shares_owned = %q, want 5.50", got.SharesOwned)
	}
	if got.TotalInvestment != "275.00" {
		t.Fatalf("total_investment = %q, want 275.00", got.TotalInvestment)
	}
}
