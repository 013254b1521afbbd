package applicability

import (
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/internal/transit"
)

// PredicateID names one applicability check.
type PredicateID string

const (
	PredicateNone          PredicateID = ""
	PredicateRuleData      PredicateID = "rule_data"
	PredicateDateWindow    PredicateID = "date_window"
	PredicateTripType      PredicateID = "trip_type"
	PredicateLocation      PredicateID = "location"
	PredicatePassenger     PredicateID = "passenger"
	PredicateExemption     PredicateID = "exemption"
	PredicateCurrency      PredicateID = "currency"
	PredicateFormOfPayment PredicateID = "form_of_payment"
	PredicateSegmentFee    PredicateID = "segment_fee"
	PredicateTransit       PredicateID = "transit"
	PredicateTaxOnTax      PredicateID = "tax_on_tax"
)

// Order is the fixed evaluation order. Later checks rely on state left by
// earlier ones (location fills the matched segments).
var Order = []PredicateID{
	PredicateDateWindow,
	PredicateTripType,
	PredicateLocation,
	PredicatePassenger,
	PredicateExemption,
	PredicateCurrency,
	PredicateFormOfPayment,
	PredicateSegmentFee,
	PredicateTransit,
	PredicateTaxOnTax,
}

// Working exposes the tax codes already computed for the itinerary.
type Working interface {
	Has(code string) bool
}

// Range is an inclusive span of segment indices.
type Range struct {
	Start int
	End   int
}

// Check inspects the request and may narrow State.Matched.
type Check func(s *State) bool

// Zones resolves a zone code to its member nations.
type Zones interface {
	ZoneMembers(zone string) []string
}

type Request struct {
	Rule      *domain.TaxRuleRecord
	Itinerary *itinerary.Itinerary
	// Range limits the segments considered; nil means the whole itinerary.
	Range   *Range
	Working Working
	Transit transit.Options
	Nation  config.NationConfig
	Zones   Zones
	// Overrides replace the default check of a predicate slot.
	Overrides map[PredicateID]Check
}

// State is threaded through the checks of one validation.
type State struct {
	Req       *Request
	Range     Range
	Matched   []int
	Stopovers uint64
}

type Result struct {
	Applicable bool
	Failed     PredicateID
	Matched    []int
	Stopovers  uint64
	Err        error
}

var defaultChecks = map[PredicateID]Check{
	PredicateDateWindow:    CheckDateWindow,
	PredicateTripType:      CheckTripType,
	PredicateLocation:      CheckLocation,
	PredicatePassenger:     CheckPassenger,
	PredicateExemption:     CheckExemption,
	PredicateCurrency:      CheckCurrency,
	PredicateFormOfPayment: CheckFormOfPayment,
	PredicateSegmentFee:    CheckSegmentFee,
	PredicateTransit:       CheckTransit,
	PredicateTaxOnTax:      CheckTaxOnTax,
}

// Default returns the built-in check of a predicate.
func Default(id PredicateID) Check {
	return defaultChecks[id]
}

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs the predicates in Order and stops at the first failure.
func (v *Validator) Validate(req Request) Result {
	if req.Rule == nil || req.Itinerary == nil || len(req.Itinerary.Segments) == 0 {
		return Result{Failed: PredicateRuleData, Err: domain.ErrRuleNotFound}
	}
	if err := req.Rule.Validate(); err != nil {
		return Result{Failed: PredicateRuleData, Err: err}
	}

	state := &State{Req: &req, Range: clampRange(req.Range, len(req.Itinerary.Segments))}
	for i := state.Range.Start; i <= state.Range.End; i++ {
		state.Matched = append(state.Matched, i)
	}

	for _, id := range Order {
		check := defaultChecks[id]
		if override, ok := req.Overrides[id]; ok && override != nil {
			check = override
		}
		if !check(state) {
			return Result{Failed: id, Matched: state.Matched, Stopovers: state.Stopovers}
		}
	}
	return Result{Applicable: true, Matched: state.Matched, Stopovers: state.Stopovers}
}

func clampRange(r *Range, n int) Range {
	if r == nil {
		return Range{Start: 0, End: n - 1}
	}
	out := *r
	if out.Start < 0 {
		out.Start = 0
	}
	if out.End < 0 || out.End >= n {
		out.End = n - 1
	}
	if out.Start > out.End {
		out.Start = out.End
	}
	return out
}
