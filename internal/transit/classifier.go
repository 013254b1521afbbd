package transit

import (
	"time"

	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
)

type Outcome int

const (
	Stopover Outcome = iota
	Connection
)

func (o Outcome) String() string {
	if o == Connection {
		return "connection"
	}
	return "stopover"
}

// Precedence controls when forced per-segment indicators override the
// computed time window.
type Precedence int

const (
	ForcedUnlessTaxOnly Precedence = iota
	ForcedAlways
	ForcedNever
)

type Options struct {
	// MirrorImage evaluates the pair as if travelled in the opposite direction.
	MirrorImage bool
	// LandToAirConnection treats an arriving surface segment as a connection.
	LandToAirConnection bool
	Precedence          Precedence
}

type Crossing int

const (
	CrossingDomDom Crossing = iota
	CrossingDomIntl
	CrossingIntlDom
	CrossingIntlIntl
	CrossingSurfDom
	CrossingSurfIntl
	CrossingOffline
)

var crossingNames = [...]string{"dom_dom", "dom_intl", "intl_dom", "intl_intl", "surf_dom", "surf_intl", "offline"}

func (c Crossing) String() string {
	if int(c) < len(crossingNames) {
		return crossingNames[c]
	}
	return "unknown"
}

// Classify decides whether the point between from and to is a stopover.
// from is the segment arriving at the point, to the one leaving it. Missing
// or inconsistent input yields Stopover.
func Classify(from, to *itinerary.Segment, r domain.TransitRestriction, opts Options) Outcome {
	if from == nil || to == nil {
		return Stopover
	}

	if outcome, ok := forced(from, r, opts.Precedence); ok {
		return outcome
	}

	if from.Undated() || to.Undated() {
		return Connection
	}

	if r.SameFlight && SameFlight(from, to) {
		return Stopover
	}

	arrival, departure := *from.Arrival, *to.Departure
	elapsed := departure.Sub(arrival)
	if elapsed < 0 {
		return Stopover
	}

	if r.SameDay || r.NextDay {
		days := calendarDays(arrival, departure)
		if days == 0 || (r.NextDay && days == 1) {
			return Connection
		}
		return Stopover
	}

	inbound, outbound := from, to
	if opts.MirrorImage {
		inbound, outbound = to, from
	}

	if opts.LandToAirConnection && inbound.Surface() {
		return Connection
	}

	if !allows(r, CrossingOf(inbound, outbound)) {
		return Stopover
	}

	threshold, ok := r.Threshold()
	if !ok {
		return Connection
	}
	if elapsed <= threshold {
		return Connection
	}
	return Stopover
}

// StopoverMask classifies every adjacent pair; bit i is set when the point
// after segment i is a stopover.
func StopoverMask(segs []itinerary.Segment, r domain.TransitRestriction, opts Options) uint64 {
	var mask uint64
	for i := 0; i+1 < len(segs) && i < 64; i++ {
		if Classify(&segs[i], &segs[i+1], r, opts) == Stopover {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// CrossingOf names the kind of change made at the point between in and out.
func CrossingOf(in, out *itinerary.Segment) Crossing {
	intl := in.International() || out.International()
	if in.Surface() || out.Surface() {
		if intl {
			return CrossingSurfIntl
		}
		return CrossingSurfDom
	}
	if a, b := in.Carrier(), out.Carrier(); a != "" && b != "" && a != b {
		return CrossingOffline
	}
	switch {
	case in.International() && out.International():
		return CrossingIntlIntl
	case in.International():
		return CrossingIntlDom
	case out.International():
		return CrossingDomIntl
	default:
		return CrossingDomDom
	}
}

// SameFlight reports whether both segments are legs of one marketing flight.
func SameFlight(a, b *itinerary.Segment) bool {
	return a.MarketingCarrier != "" &&
		a.FlightNumber != 0 &&
		a.MarketingCarrier == b.MarketingCarrier &&
		a.FlightNumber == b.FlightNumber
}

func forced(seg *itinerary.Segment, r domain.TransitRestriction, p Precedence) (Outcome, bool) {
	if !seg.ForcedStopover && !seg.ForcedConnection {
		return Stopover, false
	}
	switch p {
	case ForcedNever:
		return Stopover, false
	case ForcedUnlessTaxOnly:
		if r.TaxOnly {
			return Stopover, false
		}
	}
	if seg.ForcedStopover {
		return Stopover, true
	}
	return Connection, true
}

func allows(r domain.TransitRestriction, c Crossing) bool {
	switch c {
	case CrossingDomDom:
		return r.DomDom
	case CrossingDomIntl:
		return r.DomIntl
	case CrossingIntlDom:
		return r.IntlDom
	case CrossingIntlIntl:
		return r.IntlIntl
	case CrossingSurfDom:
		return r.SurfDom
	case CrossingSurfIntl:
		return r.SurfIntl
	case CrossingOffline:
		return r.OfflineCxr
	}
	return false
}

func calendarDays(from, to time.Time) int {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
