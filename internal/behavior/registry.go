package behavior

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/airtax/internal/amount"
	"github.com/smallbiznis/airtax/internal/applicability"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/currency"
	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/internal/transit"
)

const (
	Generic            = 0
	MinLegCount        = 17
	FarePortionPercent = 19
	USHalfTax          = 21
	ForcedAlways       = 35
	HiddenStop         = 44
	WeekdayDeparture   = 52
	LandToAir          = 60
)

// Spec-config parameter names read by the variants.
const (
	ParamMinLegs      = "MINLEGS"
	ParamHalfTaxRound = "HALFTAXROUND"
	ParamDayOfWeek    = "DOW"
	ParamLandToAir    = "LANDTOAIR"
)

var halfTaxRuleChange = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// Params is what a variant may look at when it customises a rule.
type Params struct {
	Rule      *domain.TaxRuleRecord
	Itinerary *itinerary.Itinerary
	Config    config.TaxConfig
}

func (p Params) param(key string) (string, bool) {
	if p.Rule == nil || p.Rule.SpecConfigName == "" {
		return "", false
	}
	v, ok := p.Config.SpecParam(p.Rule.SpecConfigName, key)
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

// Bundle overrides pieces of the generic pipeline for one special-process
// number. Nil hooks keep the generic behaviour.
type Bundle struct {
	No   int    `json:"no"`
	Name string `json:"name"`

	Transit    func(p Params, opts transit.Options) transit.Options             `json:"-"`
	Predicates func(p Params) map[applicability.PredicateID]applicability.Check `json:"-"`
	Formula    func(p Params, in *amount.Input)                                 `json:"-"`
}

func (b Bundle) TransitOptions(p Params) transit.Options {
	var opts transit.Options
	if b.Transit != nil {
		opts = b.Transit(p, opts)
	}
	return opts
}

func (b Bundle) Overrides(p Params) map[applicability.PredicateID]applicability.Check {
	if b.Predicates == nil {
		return nil
	}
	return b.Predicates(p)
}

func (b Bundle) Apply(p Params, in *amount.Input) {
	if b.Formula != nil {
		b.Formula(p, in)
	}
}

// Registry maps special-process numbers to bundles. It is built once and
// never mutated.
type Registry struct {
	bundles map[int]Bundle
	generic Bundle
}

func NewRegistry() *Registry {
	return newRegistry(builtins())
}

func newRegistry(bundles []Bundle) *Registry {
	r := &Registry{
		bundles: make(map[int]Bundle, len(bundles)),
		generic: Bundle{No: Generic, Name: "generic"},
	}
	for _, b := range bundles {
		r.bundles[b.No] = b
	}
	if g, ok := r.bundles[Generic]; ok {
		r.generic = g
	}
	return r
}

// Lookup falls back to the generic bundle for unregistered numbers.
func (r *Registry) Lookup(no int) Bundle {
	if b, ok := r.bundles[no]; ok {
		return b
	}
	return r.generic
}

func (r *Registry) Has(no int) bool {
	_, ok := r.bundles[no]
	return ok
}

// List returns the registered bundles ordered by number.
func (r *Registry) List() []Bundle {
	out := make([]Bundle, 0, len(r.bundles))
	for _, b := range r.bundles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].No < out[j].No })
	return out
}

func builtins() []Bundle {
	return []Bundle{
		{No: Generic, Name: "generic"},
		{No: MinLegCount, Name: "min_leg_count", Predicates: minLegCount},
		{No: FarePortionPercent, Name: "fare_portion_percent", Formula: farePortionBase},
		{No: USHalfTax, Name: "us_half_tax", Formula: halfTax},
		{No: ForcedAlways, Name: "forced_always", Transit: func(_ Params, opts transit.Options) transit.Options {
			opts.Precedence = transit.ForcedAlways
			return opts
		}},
		{No: HiddenStop, Name: "hidden_stop", Predicates: hiddenStop},
		{No: WeekdayDeparture, Name: "weekday_departure", Predicates: weekdayDeparture},
		{No: LandToAir, Name: "land_to_air", Transit: landToAir},
	}
}

func minLegCount(p Params) map[applicability.PredicateID]applicability.Check {
	minLegs := 2
	if raw, ok := p.param(ParamMinLegs); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			minLegs = n
		}
	}
	location := applicability.Default(applicability.PredicateLocation)
	return map[applicability.PredicateID]applicability.Check{
		applicability.PredicateLocation: func(s *applicability.State) bool {
			return location(s) && len(s.Matched) >= minLegs
		},
	}
}

// farePortionBase levies the percentage on the fare portions overlapping
// the matched segments instead of the whole fare.
func farePortionBase(p Params, in *amount.Input) {
	if !p.Rule.IsPercentage() || len(in.Matched) == 0 {
		return
	}
	total := decimal.Zero
	for _, portion := range p.Itinerary.Fare.Portions {
		for _, idx := range in.Matched {
			if idx >= portion.StartSeg && idx <= portion.EndSeg {
				total = total.Add(portion.NUCAmount)
				break
			}
		}
	}
	base := currency.New(total, currency.NUC)
	in.BaseOverride = &base
}

func halfTax(p Params, in *amount.Input) {
	if p.Rule.IsPercentage() {
		return
	}
	mode := currency.RoundUp
	if p.Itinerary.TicketingDate.Before(halfTaxRuleChange) {
		mode = currency.RoundDown
	}
	if raw, ok := p.param(ParamHalfTaxRound); ok {
		switch strings.ToUpper(raw)[0] {
		case 'D':
			mode = currency.RoundDown
		case 'U':
			mode = currency.RoundUp
		case 'N':
			mode = currency.RoundNone
		}
	}
	in.HalfTax = &amount.HalfTax{Unit: decimal.New(1, -1), Mode: mode}
}

// hiddenStop keeps matched segments with a hidden stop; the stop is a point
// of embarkation of its own.
func hiddenStop(Params) map[applicability.PredicateID]applicability.Check {
	transitCheck := applicability.Default(applicability.PredicateTransit)
	return map[applicability.PredicateID]applicability.Check{
		applicability.PredicateTransit: func(s *applicability.State) bool {
			before := append([]int(nil), s.Matched...)
			transitCheck(s)

			kept := make(map[int]struct{}, len(s.Matched))
			for _, idx := range s.Matched {
				kept[idx] = struct{}{}
			}
			segs := s.Req.Itinerary.Segments
			out := before[:0]
			for _, idx := range before {
				if _, ok := kept[idx]; ok || len(segs[idx].HiddenStops) > 0 {
					out = append(out, idx)
				}
			}
			s.Matched = out
			return len(out) > 0
		},
	}
}

func weekdayDeparture(p Params) map[applicability.PredicateID]applicability.Check {
	raw, ok := p.param(ParamDayOfWeek)
	if !ok {
		return nil
	}
	days := parseWeekdays(raw)
	dates := applicability.Default(applicability.PredicateDateWindow)
	return map[applicability.PredicateID]applicability.Check{
		applicability.PredicateDateWindow: func(s *applicability.State) bool {
			if !dates(s) {
				return false
			}
			seg := s.Req.Itinerary.Segments[s.Range.Start]
			if seg.Departure == nil {
				return true
			}
			_, hit := days[seg.Departure.Weekday()]
			return hit
		},
	}
}

var weekdayNames = map[string]time.Weekday{
	"MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday, "THU": time.Thursday,
	"FRI": time.Friday, "SAT": time.Saturday, "SUN": time.Sunday,
}

// parseWeekdays accepts ISO day numbers (1 = Monday) or three letter names.
func parseWeekdays(raw string) map[time.Weekday]struct{} {
	out := make(map[time.Weekday]struct{})
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '/' }) {
		part = strings.ToUpper(strings.TrimSpace(part))
		if n, err := strconv.Atoi(part); err == nil && n >= 1 && n <= 7 {
			out[time.Weekday(n%7)] = struct{}{}
			continue
		}
		if len(part) >= 3 {
			if day, ok := weekdayNames[part[:3]]; ok {
				out[day] = struct{}{}
			}
		}
	}
	return out
}

func landToAir(p Params, opts transit.Options) transit.Options {
	if raw, ok := p.param(ParamLandToAir); ok {
		opts.LandToAirConnection = strings.HasPrefix(strings.ToUpper(raw), "Y")
	}
	return opts
}
