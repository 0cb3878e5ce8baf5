package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
)

// GetShareByMember возвращает паи участника. Если участник ещё не покупал
// паи, возвращается нулевая запись: запись в shares создаётся лениво при
// первой покупке или входящей передаче.
func (r *PostgresRepository) GetShareByMember(ctx context.Context, memberID int64) (*model.Share, error) {
	if _, err := r.GetMemberByID(ctx, memberID); err != nil {
		return nil, err
	}

	var (
		s          model.Share
		investment int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT member_id, units_owned, total_investment FROM shares WHERE member_id = $1`,
		memberID,
	).Scan(&s.MemberID, &s.UnitsOwned, &investment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Share{MemberID: memberID}, nil
		}
		return nil, fmt.Errorf("select share: %w", err)
	}
	s.TotalInvestment = money.FromCents(investment)
	return &s, nil
}

func upsertShare(ctx context.Context, tx pgx.Tx, memberID, units int64, investment money.Money) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO shares (member_id, units_owned, total_investment)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (member_id) DO UPDATE
		 SET units_owned = shares.units_owned + EXCLUDED.units_owned,
		     total_investment = shares.total_investment + EXCLUDED.total_investment`,
		memberID, units, investment.Cents(),
	)
	if err != nil {
		return fmt.Errorf("upsert share: %w", err)
	}
	return nil
}

// BuyShares списывает сумму покупки с кошелька и зачисляет паи участнику.
// Количество паёв в сотых долях рассчитывается сервисом из цены пая.
func (r *PostgresRepository) BuyShares(ctx context.Context, memberID int64, amount money.Money, units int64) error {
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

		if err := upsertShare(ctx, tx, memberID, units, amount); err != nil {
			return err
		}

		description := fmt.Sprintf("purchased %s shares", decimal.New(units, -2))
		return appendTransaction(ctx, tx, memberID, amount, model.TransactionSharePurchase, description)
	})
}

// TransferShares передаёт паи от одного участника другому без движения
// денег. Строки обоих участников блокируются в порядке возрастания
// идентификатора, чтобы встречные передачи не взаимоблокировались.
func (r *PostgresRepository) TransferShares(ctx context.Context, senderID, recipientID int64, units int64) error {
	return r.mutate(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM members WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
			[]int64{senderID, recipientID},
		)
		if err != nil {
			return fmt.Errorf("lock members: %w", err)
		}

		locked := 0
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan member id: %w", err)
			}
			locked++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		if locked != 2 {
			return ErrMemberNotFound
		}

		var owned int64
		err = tx.QueryRow(ctx,
			`SELECT units_owned FROM shares WHERE member_id = $1`,
			senderID,
		).Scan(&owned)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInsufficientShares
			}
			return fmt.Errorf("select sender share: %w", err)
		}

		if owned < units {
			return ErrInsufficientShares
		}

		_, err = tx.Exec(ctx,
			`UPDATE shares SET units_owned = units_owned - $2 WHERE member_id = $1`,
			senderID, units,
		)
		if err != nil {
			return fmt.Errorf("debit sender shares: %w", err)
		}

		return upsertShare(ctx, tx, recipientID, units, money.Zero)
	})
}

// GetTotalShareUnits возвращает суммарное количество паёв в обращении.
func (r *PostgresRepository) GetTotalShareUnits(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(units_owned), 0) FROM shares`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum shares: %w", err)
	}
	return total, nil
}

// ListShareholders возвращает всех держателей паёв в стабильном порядке.
func (r *PostgresRepository) ListShareholders(ctx context.Context) ([]model.Share, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT member_id, units_owned, total_investment
		 FROM shares
		 WHERE units_owned > 0
		 ORDER BY member_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select shareholders: %w", err)
	}
	defer rows.Close()

	var res []model.Share
	for rows.Next() {
		var (
			s          model.Share
			investment int64
		)
		if err := rows.Scan(&s.MemberID, &s.UnitsOwned, &investment); err != nil {
			return nil, fmt.Errorf("scan shareholder: %w", err)
		}
		s.TotalInvestment = money.FromCents(investment)
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// EnsureDividendBatch регистрирует раздачу дивидендов. Повторный вызов с
// тем же идентификатором не создаёт дубликата, что позволяет безопасно
// перезапускать прерванную раздачу.
func (r *PostgresRepository) EnsureDividendBatch(ctx context.Context, batchID uuid.UUID, pool money.Money) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dividend_batches (id, pool) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		batchID, pool.Cents(),
	)
	if err != nil {
		return fmt.Errorf("ensure dividend batch: %w", err)
	}
	return nil
}

// PayDividend выплачивает дивиденд одному участнику в рамках раздачи.
// Выплата идемпотентна по паре (раздача, участник): если запись о выплате
// уже существует, метод возвращает false и балансы не меняются.
func (r *PostgresRepository) PayDividend(ctx context.Context, batchID uuid.UUID, memberID int64, amount money.Money) (bool, error) {
	paid := false
	err := r.mutate(ctx, func(tx pgx.Tx) error {
		paid = false

		if _, _, err := lockMemberBalances(ctx, tx, memberID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO dividend_payouts (batch_id, member_id, amount)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (batch_id, member_id) DO NOTHING`,
			batchID, memberID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE members SET wallet_balance = wallet_balance + $2 WHERE id = $1`,
			memberID, amount.Cents(),
		)
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}

		description := fmt.Sprintf("dividend batch %s", batchID)
		if err := appendTransaction(ctx, tx, memberID, amount, model.TransactionDividend, description); err != nil {
			return err
		}

		paid = true
		return nil
	})
	return paid, err
}
