package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kmuriithi/sacco-ledger-system/internal/model"
	"github.com/kmuriithi/sacco-ledger-system/internal/money"
)

// BuyShares покупает паи на указанную сумму по цене пая.
// Количество паёв округляется арифметически до сотых долей.
func (s *Service) BuyShares(ctx context.Context, memberID int64, amount, pricePerShare money.Money) error {
	if !amount.IsPositive() || !pricePerShare.IsPositive() {
		return money.ErrInvalidAmount
	}

	units := amount.Decimal().Div(pricePerShare.Decimal()).Round(2).Shift(2).IntPart()
	if units <= 0 {
		return fmt.Errorf("%w: amount too small for price %s", money.ErrInvalidAmount, pricePerShare)
	}

	return s.repo.BuyShares(ctx, memberID, amount, units)
}

// TransferShares передаёт паи другому участнику.
func (s *Service) TransferShares(ctx context.Context, senderID, recipientID int64, units decimal.Decimal) error {
	if senderID == recipientID {
		return fmt.Errorf("%w: cannot transfer shares to self", ErrInvalidTransfer)
	}

	hundredths := units.Round(2).Shift(2).IntPart()
	if hundredths <= 0 {
		return money.ErrInvalidAmount
	}

	return s.repo.TransferShares(ctx, senderID, recipientID, hundredths)
}

// SharePosition возвращает паи участника.
func (s *Service) SharePosition(ctx context.Context, memberID int64) (*model.Share, error) {
	return s.repo.GetShareByMember(ctx, memberID)
}

// DividendResult описывает итог раздачи дивидендов.
type DividendResult struct {
	BatchID uuid.UUID `json:"batch_id"`
	Paid    int       `json:"paid"`
	Skipped int       `json:"skipped"`
}

// DistributeDividends распределяет пул пропорционально паям участников.
// Каждая выплата атомарна и идемпотентна в рамках раздачи, поэтому
// прерванную раздачу можно безопасно перезапустить с тем же batchID:
// уже оплаченные участники будут пропущены. При нулевом количестве паёв
// в обращении раздача — no-op.
func (s *Service) DistributeDividends(ctx context.Context, batchID uuid.UUID, pool money.Money) (*DividendResult, error) {
	if !pool.IsPositive() {
		return nil, money.ErrInvalidAmount
	}
	if batchID == uuid.Nil {
		batchID = uuid.New()
	}

	result := &DividendResult{BatchID: batchID}

	totalUnits, err := s.repo.GetTotalShareUnits(ctx)
	if err != nil {
		return nil, err
	}
	if totalUnits == 0 {
		return result, nil
	}

	if err := s.repo.EnsureDividendBatch(ctx, batchID, pool); err != nil {
		return nil, err
	}

	shareholders, err := s.repo.ListShareholders(ctx)
	if err != nil {
		return nil, err
	}

	for _, sh := range shareholders {
		payout, err := pool.MulRat(sh.UnitsOwned, totalUnits)
		if err != nil {
			return result, fmt.Errorf("payout for member %d: %w", sh.MemberID, err)
		}
		if payout == money.Zero {
			result.Skipped++
			continue
		}

		paid, err := s.repo.PayDividend(ctx, batchID, sh.MemberID, payout)
		if err != nil {
			// Раздача прервана посередине: уже выплаченное остаётся,
			// повторный запуск с тем же batchID доплатит остальных.
			return result, fmt.Errorf("pay member %d: %w", sh.MemberID, err)
		}
		if paid {
			result.Paid++
		} else {
			result.Skipped++
		}
	}

	return result, nil
}
