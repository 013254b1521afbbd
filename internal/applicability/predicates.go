package applicability

import (
	"slices"
	"strings"
	"time"

	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/internal/transit"
)

// CheckDateWindow matches the ticketing date against the sale window and the
// first departure against the travel window. Nations with historic overrides
// enabled use the historic windows whenever the rule carries them.
func CheckDateWindow(s *State) bool {
	rule, it := s.Req.Rule, s.Req.Itinerary

	saleFrom, saleTo := &rule.EffectiveDate, rule.DiscontinueDate
	travelFrom, travelTo := rule.FirstTravelDate, rule.LastTravelDate
	if s.Req.Nation.HistoricOverrides {
		if rule.HistoricSaleEffDate != nil {
			saleFrom, saleTo = rule.HistoricSaleEffDate, rule.HistoricSaleDiscDate
		}
		if rule.HistoricTravelEffDate != nil {
			travelFrom, travelTo = rule.HistoricTravelEffDate, rule.HistoricTravelDiscDate
		}
	}

	if !inWindow(it.TicketingDate, saleFrom, saleTo) {
		return false
	}
	return inWindow(it.TravelDate(), travelFrom, travelTo)
}

func inWindow(t time.Time, from, to *time.Time) bool {
	day := dateOf(t)
	if from != nil && !from.IsZero() && day.Before(dateOf(*from)) {
		return false
	}
	if to != nil && !to.IsZero() && day.After(dateOf(*to)) {
		return false
	}
	return true
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CheckTripType enforces the domestic/international travel type and the
// one-way/round-trip itinerary type.
func CheckTripType(s *State) bool {
	rule, it := s.Req.Rule, s.Req.Itinerary
	domestic := it.Domestic()

	switch rule.TravelType {
	case domain.TravelDomestic:
		if !domestic {
			return false
		}
	case domain.TravelInternational:
		if domestic {
			return false
		}
	}

	oneWay := it.OneWay
	if !domestic {
		oneWay = it.Origin().Nation != it.Destination().Nation
	}
	switch rule.ItineraryType {
	case domain.ItineraryRoundTrip:
		return !oneWay
	case domain.ItineraryOneWay:
		return oneWay
	}
	return true
}

// CheckLocation applies the loc1/loc2 directionality and narrows Matched to
// the segments satisfying the trip-type geometry.
func CheckLocation(s *State) bool {
	rule, it := s.Req.Rule, s.Req.Itinerary
	zones := s.Req.Zones

	if rule.Loc1Appl == domain.ApplOrigin && !rule.Loc1.IsBlank() && !MatchPoint(it.Origin(), rule.Loc1, zones) {
		return false
	}
	if rule.Loc1Appl == domain.ApplDestination && !rule.Loc1.IsBlank() && !MatchPoint(it.Destination(), rule.Loc1, zones) {
		return false
	}
	if rule.Loc2Appl == domain.ApplDestination && !rule.Loc2.IsBlank() && !MatchPoint(it.Destination(), rule.Loc2, zones) {
		return false
	}
	if rule.Loc2Appl == domain.ApplOrigin && !rule.Loc2.IsBlank() && !MatchPoint(it.Origin(), rule.Loc2, zones) {
		return false
	}

	matched := s.Matched[:0:0]
	for _, idx := range s.Matched {
		if MatchSegment(&it.Segments[idx], rule, zones) {
			matched = append(matched, idx)
		}
	}
	s.Matched = matched
	return len(matched) > 0
}

// MatchSegment evaluates the rule geography for one segment.
func MatchSegment(seg *itinerary.Segment, rule *domain.TaxRuleRecord, zones Zones) bool {
	in1 := func(p itinerary.Point) bool { return MatchPoint(p, rule.Loc1, zones) }
	in2 := func(p itinerary.Point) bool { return MatchPoint(p, rule.Loc2, zones) }

	switch rule.TripType {
	case domain.GeographyFrom:
		return in1(seg.Origin) && in2(seg.Destination)
	case domain.GeographyBetween:
		return (in1(seg.Origin) && in2(seg.Destination)) || (in2(seg.Origin) && in1(seg.Destination))
	case domain.GeographyWithin:
		return in1(seg.Origin) && in1(seg.Destination)
	case domain.GeographyIncludes:
		if in1(seg.Origin) || in1(seg.Destination) {
			return true
		}
		for _, h := range seg.HiddenStops {
			if in1(h) {
				return true
			}
		}
		return false
	default:
		return in1(seg.Origin) && in2(seg.Destination)
	}
}

// MatchPoint reports whether p falls in loc, honouring the exclusion flag.
// A blank location matches everything.
func MatchPoint(p itinerary.Point, loc domain.Location, zones map[string][]string) bool {
	if loc.IsBlank() {
		return true
	}
	code := strings.ToUpper(loc.Code)
	var hit bool
	switch loc.Type {
	case domain.LocNation:
		hit = p.Nation == code
	case domain.LocCity:
		hit = p.Code == code || p.CityCode() == code
	case domain.LocState:
		hit = p.State == code
	case domain.LocZone:
		hit = zones != nil && slices.Contains(zones.ZoneMembers(code), p.Nation)
	}
	if loc.Exclude {
		return !hit
	}
	return hit
}

// CheckPassenger matches the fare path passenger against the restriction list.
func CheckPassenger(s *State) bool {
	rule := s.Req.Rule
	if len(rule.Passengers) == 0 {
		return true
	}
	fare := s.Req.Itinerary.Fare

	hit := false
	for _, p := range rule.Passengers {
		if p.PaxType != "" && !strings.EqualFold(p.PaxType, fare.PaxType) {
			continue
		}
		if fare.Age > 0 {
			if p.MinAge > 0 && fare.Age < p.MinAge {
				continue
			}
			if p.MaxAge > 0 && fare.Age > p.MaxAge {
				continue
			}
		}
		hit = true
		break
	}
	if rule.PassengerExclude {
		return !hit
	}
	return hit
}

// CheckExemption drops matched segments flown by exempt carriers or
// equipment, or booked outside the fare class list.
func CheckExemption(s *State) bool {
	rule, it := s.Req.Rule, s.Req.Itinerary
	if len(rule.ExemptCarriers) == 0 && len(rule.ExemptEquipment) == 0 && len(rule.FareClasses) == 0 {
		return true
	}

	kept := s.Matched[:0:0]
	for _, idx := range s.Matched {
		seg := &it.Segments[idx]
		if containsFold(rule.ExemptCarriers, seg.MarketingCarrier) || containsFold(rule.ExemptCarriers, seg.OperatingCarrier) {
			continue
		}
		if containsFold(rule.ExemptEquipment, seg.Equipment) {
			continue
		}
		if len(rule.FareClasses) > 0 && containsFold(rule.FareClasses, seg.FareClass) == rule.FareClassExclude {
			continue
		}
		kept = append(kept, idx)
	}
	s.Matched = kept
	return len(kept) > 0
}

// CheckCurrency applies the sell currency restriction.
func CheckCurrency(s *State) bool {
	rule, it := s.Req.Rule, s.Req.Itinerary
	if rule.SellCurrency == "" {
		return true
	}
	sell := it.SellCurrency
	if sell == "" {
		sell = it.PaymentCurrency
	}
	hit := strings.EqualFold(sell, rule.SellCurrency)
	if rule.SellCurrencyExclude {
		return !hit
	}
	return hit
}

// CheckFormOfPayment passes when the rule has no restriction or the form of
// payment is unknown.
func CheckFormOfPayment(s *State) bool {
	rule, it := s.Req.Rule, s.Req.Itinerary
	if rule.FormOfPayment == "" || it.FormOfPayment == "" {
		return true
	}
	return strings.EqualFold(rule.FormOfPayment, it.FormOfPayment)
}

// CheckSegmentFee honours the customer opt-out of segment fees.
func CheckSegmentFee(s *State) bool {
	return !(s.Req.Rule.FeeInd && s.Req.Itinerary.SegmentFeeOptOut)
}

// CheckTransit keeps the matched segments that board at a stopover (or at
// the journey origin). Tax-only restrictions keep the connections instead.
// With a via location only points in that location are filtered.
func CheckTransit(s *State) bool {
	rule, it := s.Req.Rule, s.Req.Itinerary
	if rule.Transit == nil {
		return true
	}
	r := *rule.Transit
	segs := it.Segments[s.Range.Start : s.Range.End+1]
	s.Stopovers = transit.StopoverMask(segs, r, s.Req.Transit)

	kept := s.Matched[:0:0]
	for _, idx := range s.Matched {
		if StopoverBefore(s, idx, r) != r.TaxOnly {
			kept = append(kept, idx)
			continue
		}
		if !r.Via.IsBlank() && !MatchPoint(it.Segments[idx].Origin, r.Via, s.Req.Zones) {
			kept = append(kept, idx)
		}
	}
	s.Matched = kept
	return len(kept) > 0
}

// StopoverBefore classifies the boarding point of segment idx. The journey
// origin is always a stopover.
func StopoverBefore(s *State, idx int, r domain.TransitRestriction) bool {
	if idx == 0 {
		return true
	}
	segs := s.Req.Itinerary.Segments
	return transit.Classify(&segs[idx-1], &segs[idx], r, s.Req.Transit) == transit.Stopover
}

// CheckTaxOnTax requires at least one listed base tax in the working set.
func CheckTaxOnTax(s *State) bool {
	rule := s.Req.Rule
	if !rule.HasTaxOnTax() {
		return true
	}
	if s.Req.Working == nil {
		return false
	}
	for _, code := range rule.TaxOnTaxCodes {
		if s.Req.Working.Has(code) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
