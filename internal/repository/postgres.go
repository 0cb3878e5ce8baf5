// Package repository содержит реализацию хранилища реестра в PostgreSQL.
//
// Каждая операция, изменяющая балансы, выполняется в одной транзакции:
// блокировка строк затрагиваемых агрегатов через SELECT ... FOR UPDATE,
// повторная проверка инвариантов под блокировкой, изменение балансов и
// запись в журнал операций. Ожидание блокировки ограничено lock_timeout,
// конфликт сериализации наружу отдаётся как ErrRetryable.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrMemberExists возвращается при регистрации с уже занятым логином.
var (
	ErrMemberExists = errors.New("member already exists")
	// ErrMemberNotFound возвращается, если участник не найден.
	ErrMemberNotFound = errors.New("member not found")
	// ErrLoanNotFound возвращается, если заём не найден.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrInsufficientFunds возвращается при списании сверх остатка на счёте.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientShares возвращается при передаче паёв сверх имеющихся.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrOverPayment возвращается, когда платёж превышает остаток долга.
	ErrOverPayment = errors.New("payment exceeds remaining balance")
	// ErrForbidden возвращается при операции с чужим займом.
	ErrForbidden = errors.New("loan belongs to another member")
	// ErrInvalidLoanState возвращается, если действие недопустимо для текущего статуса займа.
	ErrInvalidLoanState = errors.New("invalid loan state")
	// ErrRetryable возвращается после исчерпания повторов при конфликте блокировок;
	// вызывающая сторона может повторить операцию.
	ErrRetryable = errors.New("transient storage conflict, retry")
)

const (
	lockTimeout   = 3 * time.Second
	retryBackoff  = 200 * time.Millisecond
	retryAttempts = 3
)

// PostgresRepository предоставляет доступ к хранилищу реестра в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func isTransientConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return true
	}
	return false
}

// withTx выполняет fn в одной транзакции с ограниченным временем ожидания блокировок.
func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// mutate выполняет транзакционную операцию с повторами на конфликтах
// блокировок. После исчерпания повторов возвращает ErrRetryable.
func (r *PostgresRepository) mutate(ctx context.Context, fn func(tx pgx.Tx) error) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewConstant(retryBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.withTx(ctx, fn); err != nil {
			if isTransientConflict(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if isTransientConflict(err) {
		return fmt.Errorf("%w: %s", ErrRetryable, err)
	}
	return err
}

// CreateMember регистрирует нового участника.
func (r *PostgresRepository) CreateMember(ctx context.Context, login string, passwordHash []byte, phone string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO members (login, password_hash, phone) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, phone,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrMemberExists, login)
		}
		return 0, fmt.Errorf("create member: %w", err)
	}
	return id, nil
}

const memberColumns = `id, login, password_hash, phone, is_admin, wallet_balance, savings_balance, joined_at`

func scanMember(row pgx.Row) (*model.Member, error) {
	var (
		m       model.Member
		wallet  int64
		savings int64
	)
	err := row.Scan(&m.ID, &m.Login, &m.PasswordHash, &m.Phone, &m.IsAdmin, &wallet, &savings, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("scan member: %w", err)
	}
	m.WalletBalance = money.FromCents(wallet)
	m.SavingsBalance = money.FromCents(savings)
	return &m, nil
}

// GetMemberByLogin возвращает участника по логину.
func (r *PostgresRepository) GetMemberByLogin(ctx context.Context, login string) (*model.Member, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE login = $1`, login)
	return scanMember(row)
}

// GetMemberByID возвращает участника по идентификатору.
func (r *PostgresRepository) GetMemberByID(ctx context.Context, id int64) (*model.Member, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	return scanMember(row)
}

// balanceColumn возвращает имя колонки баланса для выбранного счёта.
// Селектор счёта проверен на уровне сервиса, сюда попадают только
// значения закрытого перечня.
func balanceColumn(kind model.AccountKind) string {
	if kind == model.AccountSavings {
		return "savings_balance"
	}
	return "wallet_balance"
}

// lockMemberBalances блокирует строку участника и возвращает его балансы.
func lockMemberBalances(ctx context.Context, tx pgx.Tx, memberID int64) (wallet, savings money.Money, err error) {
	var w, s int64
	err = tx.QueryRow(ctx,
		`SELECT wallet_balance, savings_balance FROM members WHERE id = $1 FOR UPDATE`,
		memberID,
	).Scan(&w, &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrMemberNotFound
		}
		return 0, 0, fmt.Errorf("lock member: %w", err)
	}
	return money.FromCents(w), money.FromCents(s), nil
}

func appendTransaction(ctx context.Context, tx pgx.Tx, memberID int64, amount money.Money, typ model.TransactionType, description string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (member_id, amount, type, description) VALUES ($1, $2, $3, $4)`,
		memberID, amount.Cents(), string(typ), description,
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// Deposit зачисляет сумму на кошелёк участника и пишет запись в журнал.
func (r *PostgresRepository) Deposit(ctx context.Context, memberID int64, amount money.Money, description string) error {
	return r.mutate(ctx, func(tx pgx.Tx) error {
		if _, _, err := lockMemberBalances(ctx, tx, memberID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`UPDATE members SET wallet_balance = wallet_balance + $2 WHERE id = $1`,
			memberID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}

		return appendTransaction(ctx, tx, memberID, amount, model.TransactionDeposit, description)
	})
}

// Withdraw списывает сумму с кошелька участника при достаточном остатке.
func (r *PostgresRepository) Withdraw(ctx context.Context, memberID int64, amount money.Money, description string) error {
	return r.mutate(ctx, func(tx pgx.Tx) error {
		wallet, _, err := lockMemberBalances(ctx, tx, memberID)
		if err != nil {
			return err
		}

		if wallet < amount {
			return ErrInsufficientFunds
		}

		_, err = tx.Exec(ctx,
			`UPDATE members SET wallet_balance = wallet_balance - $2 WHERE id = $1`,
			memberID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("debit wallet: %w", err)
		}

		return appendTransaction(ctx, tx, memberID, amount, model.TransactionWithdrawal, description)
	})
}

// Transfer переводит сумму между кошельком и накопительным счётом участника.
// Оба баланса меняются в одной транзакции вместе с записью журнала.
func (r *PostgresRepository) Transfer(ctx context.Context, memberID int64, from, to model.AccountKind, amount money.Money) error {
	return r.mutate(ctx, func(tx pgx.Tx) error {
		wallet, savings, err := lockMemberBalances(ctx, tx, memberID)
		if err != nil {
			return err
		}

		source := wallet
		if from == model.AccountSavings {
			source = savings
		}
		if source < amount {
			return ErrInsufficientFunds
		}

		_, err = tx.Exec(ctx,
			`UPDATE members SET `+balanceColumn(from)+` = `+balanceColumn(from)+` - $2, `+
				balanceColumn(to)+` = `+balanceColumn(to)+` + $2 WHERE id = $1`,
			memberID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("move funds: %w", err)
		}

		description := fmt.Sprintf("transferred from %s to %s", from, to)
		return appendTransaction(ctx, tx, memberID, amount, model.TransactionTransfer, description)
	})
}

// GetBalanceSummary возвращает сводку балансов и займов участника.
func (r *PostgresRepository) GetBalanceSummary(ctx context.Context, memberID int64) (*model.BalanceSummary, error) {
	m, err := r.GetMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	var outstanding int64
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(remaining_balance), 0)
		 FROM loans
		 WHERE member_id = $1 AND status = $2`,
		memberID, string(model.LoanStatusApproved),
	).Scan(&outstanding)
	if err != nil {
		return nil, fmt.Errorf("sum outstanding loans: %w", err)
	}

	summary := &model.BalanceSummary{
		Wallet:          m.WalletBalance.Float(),
		Savings:         m.SavingsBalance.Float(),
		LoanOutstanding: money.FromCents(outstanding).Float(),
	}
	summary.Total = summary.Wallet + summary.Savings

	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM loans WHERE member_id = $1 GROUP BY status`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("count loans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan loan count: %w", err)
		}
		switch model.LoanStatus(status) {
		case model.LoanStatusPending:
			summary.PendingLoans = count
		case model.LoanStatusApproved:
			summary.ApprovedLoans = count
		case model.LoanStatusRejected:
			summary.RejectedLoans = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return summary, nil
}

// TransactionFilter задаёт фильтр выборки журнала операций.
type TransactionFilter struct {
	Type        model.TransactionType
	Description string
	Limit       int
	Offset      int
}

// GetTransactions возвращает записи журнала участника, новые первыми.
// Порядок детерминирован: при равных created_at решает идентификатор записи.
func (r *PostgresRepository) GetTransactions(ctx context.Context, memberID int64, filter TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT id, member_id, amount, type, description, created_at
	 FROM transactions
	 WHERE member_id = $1`
	args := []any{memberID}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Description != "" {
		args = append(args, "%"+filter.Description+"%")
		query += fmt.Sprintf(" AND description ILIKE $%d", len(args))
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t      model.Transaction
			amount int64
			typ    string
		)
		if err := rows.Scan(&t.ID, &t.MemberID, &amount, &typ, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Amount = money.FromCents(amount)
		t.Type = model.TransactionType(typ)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
