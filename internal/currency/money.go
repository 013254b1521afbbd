package currency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NUC is the neutral unit of construction every rate is quoted against.
const NUC = "NUC"

var (
	ErrRateNotFound    = errors.New("currency_rate_not_found")
	ErrInvalidCurrency = errors.New("invalid_currency")
)

// Epsilon absorbs representation noise in threshold and rounding comparisons.
var Epsilon = decimal.New(1, -9)

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func New(amount decimal.Decimal, cur string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(cur))}
}

func (m Money) IsZero() bool {
	return m.Amount.Abs().LessThan(Epsilon)
}

// Converter is the conversion contract consumed by the amount engine.
type Converter interface {
	Convert(ctx context.Context, m Money, to string, date time.Time) (Money, error)
}

// RateSource quotes units of a currency per one NUC on a date.
type RateSource interface {
	Rate(ctx context.Context, cur string, date time.Time) (decimal.Decimal, error)
}

type RoundMode int

const (
	RoundNearest RoundMode = iota
	RoundUp
	RoundDown
	RoundNone
)

func (m RoundMode) String() string {
	switch m {
	case RoundUp:
		return "up"
	case RoundDown:
		return "down"
	case RoundNone:
		return "none"
	default:
		return "nearest"
	}
}

// ParseRoundMode reads U/D/N style indicators; only the first letter counts.
func ParseRoundMode(raw string) (RoundMode, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return RoundNearest, false
	}
	switch raw[0] {
	case 'U':
		return RoundUp, true
	case 'D':
		return RoundDown, true
	case 'N':
		if strings.HasPrefix(raw, "NO") {
			return RoundNone, true
		}
		return RoundNearest, true
	}
	return RoundNearest, false
}

// Round rounds amount to a multiple of unit. A non-positive unit leaves the
// amount untouched.
func Round(amount, unit decimal.Decimal, mode RoundMode) decimal.Decimal {
	if mode == RoundNone || !unit.IsPositive() {
		return amount
	}
	q := amount.Div(unit)
	var steps decimal.Decimal
	switch mode {
	case RoundUp:
		steps = q.Sub(Epsilon).Ceil()
	case RoundDown:
		steps = q.Add(Epsilon).Floor()
	default:
		steps = q.Add(Epsilon).Round(0)
	}
	return steps.Mul(unit)
}
