package amount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/currency"
	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrConversion   = errors.New("tax_conversion_failed")
	ErrInvalidInput = errors.New("invalid_amount_input")
)

var (
	hundred      = decimal.NewFromInt(100)
	defaultUnit  = decimal.New(1, -2)
	halfTaxUnit  = decimal.New(1, -1)
	halfTaxSplit = decimal.NewFromInt(2)
)

// FareRounder rounds a fare by the international fare rounding convention.
type FareRounder interface {
	RoundFare(m currency.Money) currency.Money
}

// HalfTax halves a flat amount and rounds the half in the tax currency.
type HalfTax struct {
	Unit decimal.Decimal
	Mode currency.RoundMode
}

// Prior is an already computed line item, in payment currency.
type Prior struct {
	Code   string
	Amount decimal.Decimal
}

type Input struct {
	Rule      *domain.TaxRuleRecord
	Itinerary *itinerary.Itinerary
	Matched   []int
	Prior     []Prior
	Nation    config.NationConfig

	// BaseOverride replaces the selected fare base of a percentage tax.
	BaseOverride *currency.Money
	HalfTax      *HalfTax
}

type Detail struct {
	Base       decimal.Decimal `json:"base"`
	BaseSource BaseSource      `json:"base_source,omitempty"`
	TaxOnTax   decimal.Decimal `json:"tax_on_tax"`
	PreCap     decimal.Decimal `json:"pre_cap"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Count      int             `json:"count"`
	Capped     bool            `json:"capped,omitempty"`
	HalfTax    bool            `json:"half_tax,omitempty"`
}

type Params struct {
	fx.In

	Converter currency.Converter
	Fares     *currency.FareRounder
	Log       *zap.Logger
}

type Engine struct {
	conv  currency.Converter
	fares FareRounder
	log   *zap.Logger
}

func NewEngine(p Params) *Engine {
	return New(p.Converter, p.Fares, p.Log)
}

func New(conv currency.Converter, fares FareRounder, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{conv: conv, fares: fares, log: log.Named("amount")}
}

// Compute returns the amount of one applicable rule in the itinerary's
// payment currency.
func (e *Engine) Compute(ctx context.Context, in Input) (Detail, error) {
	if in.Rule == nil || in.Itinerary == nil {
		return Detail{}, ErrInvalidInput
	}
	rule := in.Rule
	pay := strings.ToUpper(strings.TrimSpace(in.Itinerary.PaymentCurrency))
	date := in.Itinerary.TicketingDate

	detail := Detail{Currency: pay, Count: 1}
	if rule.PerSegment && len(in.Matched) > 1 {
		detail.Count = len(in.Matched)
	}

	var (
		amt decimal.Decimal
		err error
	)
	if rule.IsPercentage() {
		amt, err = e.percentage(ctx, in, pay, date, &detail)
	} else {
		amt, err = e.flat(ctx, in, pay, date, &detail)
	}
	if err != nil {
		return Detail{}, err
	}
	amt = amt.Mul(decimal.NewFromInt(int64(detail.Count)))
	detail.PreCap = amt

	amt, detail.Capped, err = e.applyCaps(ctx, rule, amt, pay, date)
	if err != nil {
		return Detail{}, err
	}

	unit, mode := finalRounding(rule, in.Nation, pay)
	detail.Amount = currency.Round(amt, unit, mode)
	return detail, nil
}

func (e *Engine) flat(ctx context.Context, in Input, pay string, date time.Time, detail *Detail) (decimal.Decimal, error) {
	rule := in.Rule
	amt := rule.TaxAmount
	if rule.RoundUnit.Valid {
		mode, _ := currency.ParseRoundMode(string(rule.RoundRule))
		amt = currency.Round(amt, rule.RoundUnit.Decimal, mode)
	}
	if in.HalfTax != nil {
		half := amt.Div(halfTaxSplit)
		unit := in.HalfTax.Unit
		if !unit.IsPositive() {
			unit = halfTaxUnit
		}
		if rounded := currency.Round(half, unit, in.HalfTax.Mode); !rounded.IsZero() {
			half = rounded
		}
		amt = half
		detail.HalfTax = true
	}
	return e.convert(ctx, currency.New(amt, rule.TaxCurrency), pay, date)
}

func (e *Engine) percentage(ctx context.Context, in Input, pay string, date time.Time, detail *Detail) (decimal.Decimal, error) {
	rule := in.Rule

	source, base := SelectBase(rule, &in.Itinerary.Fare)
	if in.BaseOverride != nil {
		source, base = BaseOverride, *in.BaseOverride
	}
	detail.BaseSource = source

	fare := decimal.Zero
	if !base.Amount.IsZero() {
		converted, err := e.convert(ctx, base, pay, date)
		if err != nil {
			return decimal.Zero, err
		}
		fare = converted
		if e.fares != nil {
			fare = e.fares.RoundFare(currency.New(converted, pay)).Amount
		}
	}

	if rule.HasTaxOnTax() {
		detail.TaxOnTax = sumPrior(in.Prior, rule.TaxOnTaxCodes)
		if rule.TaxOnTaxExcl {
			fare = detail.TaxOnTax
		} else {
			fare = fare.Add(detail.TaxOnTax)
		}
	}
	detail.Base = fare

	return fare.Mul(rule.TaxAmount).Div(hundred), nil
}

func (e *Engine) applyCaps(ctx context.Context, rule *domain.TaxRuleRecord, amt decimal.Decimal, pay string, date time.Time) (decimal.Decimal, bool, error) {
	if !rule.MinTax.Valid && !rule.MaxTax.Valid {
		return amt, false, nil
	}
	capCur := rule.RangeCurrency
	if capCur == "" {
		capCur = rule.TaxCurrency
	}

	if rule.MinTax.Valid {
		lo, err := e.convert(ctx, currency.New(rule.MinTax.Decimal, capCur), pay, date)
		if err != nil {
			return decimal.Zero, false, err
		}
		if amt.LessThan(lo.Sub(currency.Epsilon)) {
			return lo, true, nil
		}
	}
	if rule.MaxTax.Valid {
		hi, err := e.convert(ctx, currency.New(rule.MaxTax.Decimal, capCur), pay, date)
		if err != nil {
			return decimal.Zero, false, err
		}
		if amt.GreaterThan(hi.Add(currency.Epsilon)) {
			return hi, true, nil
		}
	}
	return amt, false, nil
}

func (e *Engine) convert(ctx context.Context, m currency.Money, to string, date time.Time) (decimal.Decimal, error) {
	if m.Currency == to {
		return m.Amount, nil
	}
	out, err := e.conv.Convert(ctx, m, to, date)
	if err != nil {
		e.log.Warn("conversion failed",
			zap.String("from", m.Currency),
			zap.String("to", to),
			zap.Error(err),
		)
		return decimal.Zero, fmt.Errorf("%w: %s to %s: %w", ErrConversion, m.Currency, to, err)
	}
	return out.Amount, nil
}

// finalRounding picks the rule rounding when the tax is collected in its own
// currency, then the nation default, then cents.
func finalRounding(rule *domain.TaxRuleRecord, nation config.NationConfig, pay string) (decimal.Decimal, currency.RoundMode) {
	if rule.RoundUnit.Valid && strings.EqualFold(rule.TaxCurrency, pay) {
		mode, _ := currency.ParseRoundMode(string(rule.RoundRule))
		return rule.RoundUnit.Decimal, mode
	}
	if nation.RoundingUnit > 0 && strings.EqualFold(nation.Currency, pay) {
		mode, _ := currency.ParseRoundMode(nation.RoundingRule)
		return decimal.NewFromFloat(nation.RoundingUnit), mode
	}
	return defaultUnit, currency.RoundNearest
}

func sumPrior(prior []Prior, codes []string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range prior {
		for _, code := range codes {
			if strings.EqualFold(p.Code, code) {
				total = total.Add(p.Amount)
				break
			}
		}
	}
	return total
}
