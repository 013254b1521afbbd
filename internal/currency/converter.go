package currency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/airtax/internal/config"
)

// NUCConverter converts through NUC: amount / rate(from) * rate(to).
type NUCConverter struct {
	rates RateSource
}

func NewConverter(rates RateSource) *NUCConverter {
	return &NUCConverter{rates: rates}
}

func (c *NUCConverter) Convert(ctx context.Context, m Money, to string, date time.Time) (Money, error) {
	to = strings.ToUpper(strings.TrimSpace(to))
	from := strings.ToUpper(strings.TrimSpace(m.Currency))
	if to == "" || from == "" {
		return Money{}, ErrInvalidCurrency
	}
	if from == to {
		return Money{Amount: m.Amount, Currency: to}, nil
	}

	fromRate, err := c.rates.Rate(ctx, from, date)
	if err != nil {
		return Money{}, err
	}
	toRate, err := c.rates.Rate(ctx, to, date)
	if err != nil {
		return Money{}, err
	}
	if !fromRate.IsPositive() || !toRate.IsPositive() {
		return Money{}, fmt.Errorf("%w: non-positive rate %s/%s", ErrRateNotFound, from, to)
	}

	return Money{Amount: m.Amount.Mul(toRate).Div(fromRate), Currency: to}, nil
}

// FareRounder applies the international fare rounding convention: fares are
// rounded up to the currency's fare unit.
type FareRounder struct {
	holder *config.NationConfigHolder
}

func NewFareRounder(holder *config.NationConfigHolder) *FareRounder {
	return &FareRounder{holder: holder}
}

func (r *FareRounder) RoundFare(m Money) Money {
	unit := decimal.New(1, -2)
	if c, ok := r.holder.Get().Currencies[strings.ToUpper(m.Currency)]; ok && c.FareUnit > 0 {
		unit = decimal.NewFromFloat(c.FareUnit)
	}
	return Money{Amount: Round(m.Amount, unit, RoundUp), Currency: m.Currency}
}
