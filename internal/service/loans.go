package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
	"github.com/kmuriithi/sacco-ledger-system/internal/repository"
)

// Review-решения, принимаемые ReviewLoan.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

var oneHundred = decimal.NewFromInt(100)

// ApplyLoan создаёт заявку на заём в статусе pending.
func (s *Service) ApplyLoan(ctx context.Context, memberID int64, amount money.Money, rate decimal.Decimal, durationMonths int) (int64, error) {
	if !amount.IsPositive() {
		return 0, money.ErrInvalidAmount
	}
	if rate.IsNegative() {
		return 0, fmt.Errorf("%w: negative interest rate", money.ErrInvalidAmount)
	}
	if durationMonths <= 0 {
		return 0, fmt.Errorf("%w: duration must be positive", money.ErrInvalidAmount)
	}

	return s.repo.CreateLoan(ctx, memberID, amount, rate, durationMonths)
}

// ReviewLoan фиксирует решение администратора по заявке.
// Повторное решение по уже рассмотренному займу отклоняется хранилищем.
func (s *Service) ReviewLoan(ctx context.Context, loanID, reviewerID int64, decision string) error {
	switch decision {
	case DecisionApprove:
		return s.repo.ReviewLoan(ctx, loanID, reviewerID, true)
	case DecisionReject:
		return s.repo.ReviewLoan(ctx, loanID, reviewerID, false)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
}

// WithdrawFromLoan выдаёт часть одобренного займа на кошелёк участника.
func (s *Service) WithdrawFromLoan(ctx context.Context, loanID, memberID int64, amount money.Money) error {
	if !amount.IsPositive() {
		return money.ErrInvalidAmount
	}
	return s.repo.WithdrawFromLoan(ctx, loanID, memberID, amount)
}

// RepayLoan погашает часть займа с выбранного счёта участника.
func (s *Service) RepayLoan(ctx context.Context, loanID, memberID int64, amount money.Money, source model.AccountKind) error {
	if !amount.IsPositive() {
		return money.ErrInvalidAmount
	}
	if !source.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidTransfer, source)
	}
	return s.repo.RepayLoan(ctx, loanID, memberID, amount, source)
}

// Loans возвращает займы участника.
func (s *Service) Loans(ctx context.Context, memberID int64) ([]model.Loan, error) {
	return s.repo.GetLoansByMember(ctx, memberID)
}

// PendingLoans возвращает заявки, ожидающие решения.
func (s *Service) PendingLoans(ctx context.Context) ([]model.Loan, error) {
	return s.repo.GetPendingLoans(ctx)
}

// Repayments возвращает историю платежей по займу.
// Историю видит только владелец займа.
func (s *Service) Repayments(ctx context.Context, loanID, memberID int64) ([]model.LoanRepayment, error) {
	loan, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.MemberID != memberID {
		return nil, repository.ErrForbidden
	}
	return s.repo.GetRepaymentsByLoan(ctx, loanID)
}

// CalculateInterest считает простые (некапитализируемые) проценты по займу:
// amount * rate/100 * durationMonths. Чистая функция для отчётности,
// состояние не меняет.
func CalculateInterest(amount money.Money, rate decimal.Decimal, durationMonths int) (money.Money, error) {
	k := rate.Div(oneHundred).Mul(decimal.NewFromInt(int64(durationMonths)))
	return amount.MulDecimal(k)
}
