// Package money реализует денежные суммы с фиксированной точкой (2 знака).
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount возвращается при некорректной или неположительной сумме.
var ErrInvalidAmount = errors.New("invalid amount")

// ErrAmountOverflow возвращается при переполнении денежной арифметики.
var ErrAmountOverflow = errors.New("amount overflow")

// ErrNegativeResult возвращается, когда вычитание ушло бы в минус.
// Вызывающая сторона обязана проверять достаточность средств до вычитания.
var ErrNegativeResult = errors.New("negative money result")

// Money хранит сумму в центах, чтобы исключить дрейф плавающей точки.
type Money int64

// Zero — нулевая сумма.
const Zero Money = 0

var hundred = decimal.NewFromInt(100)

// Parse разбирает строку с десятичной суммой в Money.
// Допускается только положительная сумма; третий и последующие знаки
// после запятой округляются арифметически.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	cents := d.Round(2).Mul(hundred)
	if !cents.IsInteger() || !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	v := cents.IntPart()
	if v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	return Money(v), nil
}

// FromCents создаёт Money из количества центов.
func FromCents(cents int64) Money {
	return Money(cents)
}

// Cents возвращает сумму в центах.
func (m Money) Cents() int64 {
	return int64(m)
}

// IsPositive сообщает, что сумма строго больше нуля.
func (m Money) IsPositive() bool {
	return m > 0
}

// Add складывает две суммы с контролем переполнения.
func (m Money) Add(o Money) (Money, error) {
	if o > 0 && m > math.MaxInt64-o {
		return 0, ErrAmountOverflow
	}
	if o < 0 && m < math.MinInt64-o {
		return 0, ErrAmountOverflow
	}
	return m + o, nil
}

// Sub вычитает o из m. Отрицательный результат — ошибка программиста:
// проверка достаточности средств должна выполняться до вызова.
func (m Money) Sub(o Money) (Money, error) {
	r := m - o
	if r < 0 {
		return 0, ErrNegativeResult
	}
	return r, nil
}

// MulRat умножает сумму на рациональный коэффициент num/den
// с арифметическим округлением до цента.
func (m Money) MulRat(num, den int64) (Money, error) {
	if den == 0 {
		return 0, ErrInvalidAmount
	}
	r := decimal.NewFromInt(int64(m)).
		Mul(decimal.NewFromInt(num)).
		Div(decimal.NewFromInt(den)).
		Round(0)
	if !r.BigInt().IsInt64() {
		return 0, ErrAmountOverflow
	}
	return Money(r.IntPart()), nil
}

// MulDecimal умножает сумму на произвольный десятичный коэффициент.
func (m Money) MulDecimal(k decimal.Decimal) (Money, error) {
	r := decimal.NewFromInt(int64(m)).Mul(k).Round(0)
	if !r.BigInt().IsInt64() {
		return 0, ErrAmountOverflow
	}
	return Money(r.IntPart()), nil
}

// Decimal возвращает сумму как decimal в основных единицах валюты.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// Float возвращает сумму как float64 для сериализации в ответах API.
// Для расчётов использовать нельзя.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String форматирует сумму как десятичную строку, например "1200.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
