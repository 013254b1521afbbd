package amount

import (
	"github.com/smallbiznis/airtax/internal/currency"
	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
)

// BaseSource names where a percentage tax took its fare base from.
type BaseSource string

const (
	BaseExcessBaggage    BaseSource = "excess_baggage"
	BaseFullFare         BaseSource = "full_fare"
	BaseEquivalentAmount BaseSource = "equivalent_amount"
	BaseFare             BaseSource = "base_fare"
	BaseOverride         BaseSource = "override"
)

// BaseSelector is one row of the fare base decision table.
type BaseSelector struct {
	Source  BaseSource
	Matches func(rule *domain.TaxRuleRecord, fare *itinerary.FarePath) bool
	Base    func(fare *itinerary.FarePath) currency.Money
}

// BaseSelectors is evaluated top to bottom; the last row always matches.
var BaseSelectors = []BaseSelector{
	{
		Source:  BaseExcessBaggage,
		Matches: func(r *domain.TaxRuleRecord, _ *itinerary.FarePath) bool { return r.ExcessBaggageInd },
		Base: func(f *itinerary.FarePath) currency.Money {
			return currency.New(f.ExcessBaggage, f.BaseCurrency)
		},
	},
	{
		Source:  BaseFullFare,
		Matches: func(r *domain.TaxRuleRecord, _ *itinerary.FarePath) bool { return r.FullFareInd },
		Base: func(f *itinerary.FarePath) currency.Money {
			return currency.New(f.NUCAmount, currency.NUC)
		},
	},
	{
		Source: BaseEquivalentAmount,
		Matches: func(r *domain.TaxRuleRecord, f *itinerary.FarePath) bool {
			return r.EquivAmountInd && f.EquivalentCurrency != ""
		},
		Base: func(f *itinerary.FarePath) currency.Money {
			return currency.New(f.EquivalentAmount, f.EquivalentCurrency)
		},
	},
	{
		Source:  BaseFare,
		Matches: func(*domain.TaxRuleRecord, *itinerary.FarePath) bool { return true },
		Base: func(f *itinerary.FarePath) currency.Money {
			return currency.New(f.BaseFare, f.BaseCurrency)
		},
	},
}

func SelectBase(rule *domain.TaxRuleRecord, fare *itinerary.FarePath) (BaseSource, currency.Money) {
	for _, sel := range BaseSelectors {
		if sel.Matches(rule, fare) {
			return sel.Source, sel.Base(fare)
		}
	}
	return BaseFare, currency.New(fare.BaseFare, fare.BaseCurrency)
}
