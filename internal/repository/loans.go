package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
)

// Операции над займами блокируют строки в фиксированном порядке:
// сначала строка займа, затем строка участника. Тот же порядок обязан
// соблюдаться в любой новой операции, затрагивающей обе таблицы.

const loanColumns = `id, member_id, amount, remaining_balance, total_withdrawn,
	 interest_rate::text, duration_months, status, repayment_status, reviewed_by, created_at`

func scanLoan(row pgx.Row) (*model.Loan, error) {
	var (
		l         model.Loan
		amount    int64
		remaining int64
		withdrawn int64
		rate      string
		status    string
		repayment string
	)
	err := row.Scan(&l.ID, &l.MemberID, &amount, &remaining, &withdrawn,
		&rate, &l.DurationMonths, &status, &repayment, &l.ReviewedBy, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("scan loan: %w", err)
	}

	l.Amount = money.FromCents(amount)
	l.RemainingBalance = money.FromCents(remaining)
	l.TotalWithdrawn = money.FromCents(withdrawn)
	l.Status = model.LoanStatus(status)
	l.RepaymentStatus = model.RepaymentStatus(repayment)

	l.InterestRate, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse interest rate: %w", err)
	}

	return &l, nil
}

// CreateLoan создаёт заявку на заём в статусе pending.
func (r *PostgresRepository) CreateLoan(ctx context.Context, memberID int64, amount money.Money, rate decimal.Decimal, durationMonths int) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO loans (member_id, amount, interest_rate, duration_months, status, repayment_status)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6)
		 RETURNING id`,
		memberID, amount.Cents(), rate.String(), durationMonths,
		string(model.LoanStatusPending), string(model.RepaymentOngoing),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create loan: %w", err)
	}
	return id, nil
}

// GetLoanByID возвращает заём по идентификатору.
func (r *PostgresRepository) GetLoanByID(ctx context.Context, id int64) (*model.Loan, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	return scanLoan(row)
}

func (r *PostgresRepository) selectLoans(ctx context.Context, query string, args ...any) ([]model.Loan, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}
	defer rows.Close()

	var res []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetLoansByMember возвращает займы участника, новые первыми.
func (r *PostgresRepository) GetLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	return r.selectLoans(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE member_id = $1 ORDER BY created_at DESC, id DESC`,
		memberID,
	)
}

// GetPendingLoans возвращает заявки, ожидающие решения, старые первыми.
func (r *PostgresRepository) GetPendingLoans(ctx context.Context) ([]model.Loan, error) {
	return r.selectLoans(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE status = $1 ORDER BY created_at, id`,
		string(model.LoanStatusPending),
	)
}

// lockLoan блокирует строку займа и возвращает его текущее состояние.
func lockLoan(ctx context.Context, tx pgx.Tx, loanID int64) (*model.Loan, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, loanID)
	return scanLoan(row)
}

// ReviewLoan фиксирует решение по заявке. Допустимо только для статуса
// pending: при одобрении remaining_balance устанавливается равным amount
// ровно один раз, повторное решение по займу отклоняется.
func (r *PostgresRepository) ReviewLoan(ctx context.Context, loanID, reviewerID int64, approve bool) error {
	return r.mutate(ctx, func(tx pgx.Tx) error {
		loan, err := lockLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}

		if loan.Status != model.LoanStatusPending {
			return fmt.Errorf("%w: loan %d already %s", ErrInvalidLoanState, loanID, loan.Status)
		}

		if !approve {
			_, err = tx.Exec(ctx,
				`UPDATE loans SET status = $2, reviewed_by = $3 WHERE id = $1`,
				loanID, string(model.LoanStatusRejected), reviewerID,
			)
			if err != nil {
				return fmt.Errorf("reject loan: %w", err)
			}
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE loans
			 SET status = $2, remaining_balance = amount, repayment_status = $3, reviewed_by = $4
			 WHERE id = $1`,
			loanID, string(model.LoanStatusApproved), string(model.RepaymentOngoing), reviewerID,
		)
		if err != nil {
			return fmt.Errorf("approve loan: %w", err)
		}
		return nil
	})
}

// WithdrawFromLoan выдаёт часть одобренного займа на кошелёк участника:
// уменьшает remaining_balance, увеличивает total_withdrawn и зачисляет
// сумму на кошелёк одной транзакцией.
func (r *PostgresRepository) WithdrawFromLoan(ctx context.Context, loanID, memberID int64, amount money.Money) error {
	return r.mutate(ctx, func(tx pgx.Tx) error {
		loan, err := lockLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}

		if loan.MemberID != memberID {
			return ErrForbidden
		}
		if loan.Status != model.LoanStatusApproved {
			return fmt.Errorf("%w: loan %d is %s", ErrInvalidLoanState, loanID, loan.Status)
		}
		if amount > loan.RemainingBalance {
			return ErrOverPayment
		}

		if _, _, err := lockMemberBalances(ctx, tx, memberID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE loans
			 SET remaining_balance = remaining_balance - $2, total_withdrawn = total_withdrawn + $2
			 WHERE id = $1`,
			loanID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("draw down loan: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE members SET wallet_balance = wallet_balance + $2 WHERE id = $1`,
			memberID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}

		description := fmt.Sprintf("loan %d disbursement", loanID)
		return appendTransaction(ctx, tx, memberID, amount, model.TransactionWithdrawal, description)
	})
}

// RepayLoan погашает часть займа со счёта участника. Списание со счёта,
// уменьшение remaining_balance, запись платежа и запись журнала фиксируются
// одной транзакцией; при нулевом остатке заём помечается завершённым.
func (r *PostgresRepository) RepayLoan(ctx context.Context, loanID, memberID int64, amount money.Money, source model.AccountKind) error {
	return r.mutate(ctx, func(tx pgx.Tx) error {
		loan, err := lockLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}

		if loan.MemberID != memberID {
			return ErrForbidden
		}
		if loan.Status != model.LoanStatusApproved {
			return fmt.Errorf("%w: loan %d is %s", ErrInvalidLoanState, loanID, loan.Status)
		}
		if amount > loan.RemainingBalance {
			return ErrOverPayment
		}

		wallet, savings, err := lockMemberBalances(ctx, tx, memberID)
		if err != nil {
			return err
		}

		balance := wallet
		if source == model.AccountSavings {
			balance = savings
		}
		if balance < amount {
			return ErrInsufficientFunds
		}

		_, err = tx.Exec(ctx,
			`UPDATE members SET `+balanceColumn(source)+` = `+balanceColumn(source)+` - $2 WHERE id = $1`,
			memberID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("debit %s: %w", source, err)
		}

		remaining, err := loan.RemainingBalance.Sub(amount)
		if err != nil {
			return fmt.Errorf("remaining balance: %w", err)
		}

		repaymentStatus := model.RepaymentOngoing
		if remaining == money.Zero {
			repaymentStatus = model.RepaymentCompleted
		}

		_, err = tx.Exec(ctx,
			`UPDATE loans SET remaining_balance = $2, repayment_status = $3 WHERE id = $1`,
			loanID, remaining.Cents(), string(repaymentStatus),
		)
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO loan_repayments (loan_id, amount_paid) VALUES ($1, $2)`,
			loanID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("insert repayment: %w", err)
		}

		description := fmt.Sprintf("loan %d repayment from %s", loanID, source)
		return appendTransaction(ctx, tx, memberID, amount, model.TransactionLoanRepayment, description)
	})
}

// GetRepaymentsByLoan возвращает платежи по займу, новые первыми.
func (r *PostgresRepository) GetRepaymentsByLoan(ctx context.Context, loanID int64) ([]model.LoanRepayment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, loan_id, amount_paid, paid_at
		 FROM loan_repayments
		 WHERE loan_id = $1
		 ORDER BY paid_at DESC, id DESC`,
		loanID,
	)
	if err != nil {
		return nil, fmt.Errorf("select repayments: %w", err)
	}
	defer rows.Close()

	var res []model.LoanRepayment
	for rows.Next() {
		var (
			p      model.LoanRepayment
			amount int64
		)
		if err := rows.Scan(&p.ID, &p.LoanID, &amount, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan repayment: %w", err)
		}
		p.AmountPaid = money.FromCents(amount)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
