// Package service реализует операции реестра кассы взаимопомощи.
//
// Входные параметры проверяются до обращения к хранилищу; инварианты
// балансов повторно проверяются хранилищем под блокировкой строки.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
	"github.com/kmuriithi/sacco-ledger-system/internal/repository"
	"github.com/kmuriithi/sacco-ledger-system/internal/validation"
)

// ErrInvalidTransfer возвращается при переводе между одинаковыми счетами
// или с неизвестным селектором счёта.
var (
	ErrInvalidTransfer = errors.New("invalid transfer accounts")
	// ErrInvalidDecision возвращается при неизвестном решении по заявке.
	ErrInvalidDecision = errors.New("unknown review decision")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidPhone возвращается при некорректном номере телефона.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// Repository описывает контракт хранилища реестра, используемый сервисом.
type Repository interface {
	Close() error

	CreateMember(ctx context.Context, login string, passwordHash []byte, phone string) (int64, error)
	GetMemberByLogin(ctx context.Context, login string) (*model.Member, error)
	GetMemberByID(ctx context.Context, id int64) (*model.Member, error)

	Deposit(ctx context.Context, memberID int64, amount money.Money, description string) error
	Withdraw(ctx context.Context, memberID int64, amount money.Money, description string) error
	Transfer(ctx context.Context, memberID int64, from, to model.AccountKind, amount money.Money) error
	GetBalanceSummary(ctx context.Context, memberID int64) (*model.BalanceSummary, error)
	GetTransactions(ctx context.Context, memberID int64, filter repository.TransactionFilter) ([]model.Transaction, error)

	CreateLoan(ctx context.Context, memberID int64, amount money.Money, rate decimal.Decimal, durationMonths int) (int64, error)
	GetLoanByID(ctx context.Context, id int64) (*model.Loan, error)
	GetLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error)
	GetPendingLoans(ctx context.Context) ([]model.Loan, error)
	ReviewLoan(ctx context.Context, loanID, reviewerID int64, approve bool) error
	WithdrawFromLoan(ctx context.Context, loanID, memberID int64, amount money.Money) error
	RepayLoan(ctx context.Context, loanID, memberID int64, amount money.Money, source model.AccountKind) error
	GetRepaymentsByLoan(ctx context.Context, loanID int64) ([]model.LoanRepayment, error)

	GetShareByMember(ctx context.Context, memberID int64) (*model.Share, error)
	BuyShares(ctx context.Context, memberID int64, amount money.Money, units int64) error
	TransferShares(ctx context.Context, senderID, recipientID int64, units int64) error
	GetTotalShareUnits(ctx context.Context) (int64, error)
	ListShareholders(ctx context.Context) ([]model.Share, error)
	EnsureDividendBatch(ctx context.Context, batchID uuid.UUID, pool money.Money) error
	PayDividend(ctx context.Context, batchID uuid.UUID, memberID int64, amount money.Money) (bool, error)
}

// Service содержит бизнес-логику реестра.
type Service struct {
	repo Repository
}

// NewService создаёт сервис поверх указанного хранилища.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterMember регистрирует нового участника кооператива.
func (s *Service) RegisterMember(ctx context.Context, login, password, phone string) (int64, error) {
	if login == "" || password == "" {
		return 0, ErrInvalidCredentials
	}
	if !validation.IsValidPhone(phone) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}

	return s.repo.CreateMember(ctx, login, hashPassword(login, password), phone)
}

// AuthenticateMember проверяет логин и пароль и возвращает идентификатор участника.
func (s *Service) AuthenticateMember(ctx context.Context, login, password string) (int64, error) {
	m, err := s.repo.GetMemberByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if subtle.ConstantTimeCompare(hashed, m.PasswordHash) != 1 {
		return 0, ErrInvalidCredentials
	}

	return m.ID, nil
}

// GetMember возвращает участника по идентификатору.
func (s *Service) GetMember(ctx context.Context, id int64) (*model.Member, error) {
	return s.repo.GetMemberByID(ctx, id)
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// Deposit зачисляет сумму на кошелёк участника.
func (s *Service) Deposit(ctx context.Context, memberID int64, amount money.Money, description string) error {
	if !amount.IsPositive() {
		return money.ErrInvalidAmount
	}
	return s.repo.Deposit(ctx, memberID, amount, description)
}

// Withdraw списывает сумму с кошелька участника.
func (s *Service) Withdraw(ctx context.Context, memberID int64, amount money.Money, description string) error {
	if !amount.IsPositive() {
		return money.ErrInvalidAmount
	}
	return s.repo.Withdraw(ctx, memberID, amount, description)
}

// Transfer переводит сумму между счетами одного участника.
// Перевод между одинаковыми счетами запрещён.
func (s *Service) Transfer(ctx context.Context, memberID int64, from, to model.AccountKind, amount money.Money) error {
	if !from.Valid() || !to.Valid() || from == to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransfer, from, to)
	}
	if !amount.IsPositive() {
		return money.ErrInvalidAmount
	}
	return s.repo.Transfer(ctx, memberID, from, to, amount)
}

// BalanceSummary возвращает сводку балансов участника.
func (s *Service) BalanceSummary(ctx context.Context, memberID int64) (*model.BalanceSummary, error) {
	return s.repo.GetBalanceSummary(ctx, memberID)
}

// Transactions возвращает страницу журнала операций участника, новые первыми.
func (s *Service) Transactions(ctx context.Context, memberID int64, filter repository.TransactionFilter) ([]model.Transaction, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("unknown transaction type %q", filter.Type)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.GetTransactions(ctx, memberID, filter)
}
