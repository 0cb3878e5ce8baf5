// Package model содержит доменные сущности кассы взаимопомощи.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmuriithi/sacco-ledger-system/internal/money"
)

// AccountKind определяет счёт участника, затрагиваемый операцией.
type AccountKind string

const (
	AccountWallet  AccountKind = "wallet"
	AccountSavings AccountKind = "savings"
)

// Valid сообщает, что селектор счёта принимает одно из допустимых значений.
func (k AccountKind) Valid() bool {
	return k == AccountWallet || k == AccountSavings
}

// Member представляет участника кооператива и его балансы.
// Балансы изменяются только операциями ядра и никогда не уходят в минус.
type Member struct {
	ID             int64
	Login          string
	PasswordHash   []byte
	Phone          string
	IsAdmin        bool
	WalletBalance  money.Money
	SavingsBalance money.Money
	JoinedAt       time.Time
}

// LoanStatus описывает состояние заявки на заём.
type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "pending"
	LoanStatusApproved LoanStatus = "approved"
	LoanStatusRejected LoanStatus = "rejected"
)

// RepaymentStatus описывает состояние погашения одобренного займа.
type RepaymentStatus string

const (
	RepaymentOngoing   RepaymentStatus = "ongoing"
	RepaymentCompleted RepaymentStatus = "completed"
)

// Loan представляет заём участника.
// Amount неизменяем после подачи заявки; RemainingBalance устанавливается
// равным Amount ровно один раз при одобрении и далее только уменьшается.
type Loan struct {
	ID               int64
	MemberID         int64
	Amount           money.Money
	RemainingBalance money.Money
	TotalWithdrawn   money.Money
	InterestRate     decimal.Decimal
	DurationMonths   int
	Status           LoanStatus
	RepaymentStatus  RepaymentStatus
	ReviewedBy       *int64
	CreatedAt        time.Time
}

// LoanRepayment — неизменяемая запись о платеже по займу.
type LoanRepayment struct {
	ID         int64
	LoanID     int64
	AmountPaid money.Money
	PaidAt     time.Time
}

// TransactionType описывает вид записи журнала операций.
type TransactionType string

const (
	TransactionDeposit       TransactionType = "deposit"
	TransactionWithdrawal    TransactionType = "withdrawal"
	TransactionLoanRepayment TransactionType = "loan_repayment"
	TransactionTransfer      TransactionType = "transfer"
	TransactionSharePurchase TransactionType = "share_purchase"
	TransactionDividend      TransactionType = "dividend"
)

// Valid сообщает, что вид операции принадлежит закрытому перечню.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionWithdrawal, TransactionLoanRepayment,
		TransactionTransfer, TransactionSharePurchase, TransactionDividend:
		return true
	}
	return false
}

// Transaction — неизменяемая запись журнала о движении средств участника.
type Transaction struct {
	ID          int64
	MemberID    int64
	Amount      money.Money
	Type        TransactionType
	Description string
	CreatedAt   time.Time
}

// Share хранит паи участника. Количество паёв учитывается в сотых долях,
// чтобы дробные покупки не требовали плавающей точки.
type Share struct {
	MemberID        int64
	UnitsOwned      int64
	TotalInvestment money.Money
}

// Units возвращает количество паёв как decimal с двумя знаками.
func (s Share) Units() decimal.Decimal {
	return decimal.New(s.UnitsOwned, -2)
}

// BalanceSummary — сводка балансов участника для панели.
type BalanceSummary struct {
	Wallet          float64 `json:"wallet"`
	Savings         float64 `json:"savings"`
	Total           float64 `json:"total"`
	LoanOutstanding float64 `json:"loan_outstanding"`
	PendingLoans    int     `json:"pending_loans"`
	ApprovedLoans   int     `json:"approved_loans"`
	RejectedLoans   int     `json:"rejected_loans"`
}
