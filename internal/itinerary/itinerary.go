package itinerary

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNoSegments      = errors.New("itinerary_has_no_segments")
	ErrInvalidSegment  = errors.New("invalid_segment")
	ErrMissingCurrency = errors.New("missing_payment_currency")

	ErrMissingTicketingDate = errors.New("missing_ticketing_date")
)

var surfaceEquipment = map[string]struct{}{
	"TRAIN": {}, "TRN": {}, "TRS": {}, "TGV": {}, "ICE": {},
	"BUS": {}, "BOAT": {}, "LCH": {}, "HOV": {},
}

// IsSurfaceEquipment reports whether the equipment code is ground or sea transport.
func IsSurfaceEquipment(code string) bool {
	_, ok := surfaceEquipment[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

type Point struct {
	Code   string `json:"code"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Nation string `json:"nation"`
}

// CityCode falls back to the airport code for single-airport cities.
func (p Point) CityCode() string {
	if p.City != "" {
		return p.City
	}
	return p.Code
}

// Segment is one travel segment. Timestamps are nil for open or undated segments.
type Segment struct {
	Origin           Point      `json:"origin"`
	Destination      Point      `json:"destination"`
	Departure        *time.Time `json:"departure,omitempty"`
	Arrival          *time.Time `json:"arrival,omitempty"`
	Open             bool       `json:"open,omitempty"`
	Equipment        string     `json:"equipment,omitempty"`
	ForcedStopover   bool       `json:"forced_stopover,omitempty"`
	ForcedConnection bool       `json:"forced_connection,omitempty"`
	MarketingCarrier string     `json:"marketing_carrier,omitempty"`
	OperatingCarrier string     `json:"operating_carrier,omitempty"`
	FlightNumber     int        `json:"flight_number,omitempty"`
	FareClass        string     `json:"fare_class,omitempty"`
	HiddenStops      []Point    `json:"hidden_stops,omitempty"`
}

func (s *Segment) International() bool {
	return s.Origin.Nation != s.Destination.Nation
}

func (s *Segment) Surface() bool {
	return IsSurfaceEquipment(s.Equipment)
}

// Undated reports whether elapsed time around the segment is unknowable.
func (s *Segment) Undated() bool {
	return s.Open || s.Departure == nil || s.Arrival == nil
}

// Carrier is the operating carrier, falling back to the marketing carrier.
func (s *Segment) Carrier() string {
	if s.OperatingCarrier != "" {
		return s.OperatingCarrier
	}
	return s.MarketingCarrier
}

type FarePortion struct {
	StartSeg  int             `json:"start_seg"`
	EndSeg    int             `json:"end_seg"`
	NUCAmount decimal.Decimal `json:"nuc_amount"`
}

// FarePath is the priced fare the taxes are levied on.
type FarePath struct {
	BaseFare           decimal.Decimal `json:"base_fare"`
	BaseCurrency       string          `json:"base_currency"`
	EquivalentAmount   decimal.Decimal `json:"equivalent_amount"`
	EquivalentCurrency string          `json:"equivalent_currency,omitempty"`
	ExcessBaggage      decimal.Decimal `json:"excess_baggage"`
	NUCAmount          decimal.Decimal `json:"nuc_amount"`
	PaxType            string          `json:"pax_type,omitempty"`
	Age                int             `json:"age,omitempty"`
	Portions           []FarePortion   `json:"portions,omitempty"`
}

type Itinerary struct {
	Segments             []Segment `json:"segments"`
	OneWay               bool      `json:"one_way"`
	TicketingDate        time.Time `json:"ticketing_date"`
	TicketingAgentNation string    `json:"ticketing_agent_nation,omitempty"`
	PointOfSaleNation    string    `json:"point_of_sale_nation,omitempty"`
	SellCurrency         string    `json:"sell_currency,omitempty"`
	PaymentCurrency      string    `json:"payment_currency"`
	FormOfPayment        string    `json:"form_of_payment,omitempty"`
	SegmentFeeOptOut     bool      `json:"segment_fee_opt_out,omitempty"`
	ValidatingCarrier    string    `json:"validating_carrier,omitempty"`
	Fare                 FarePath  `json:"fare"`
}

func (it *Itinerary) Validate() error {
	if len(it.Segments) == 0 {
		return ErrNoSegments
	}
	for i := range it.Segments {
		seg := &it.Segments[i]
		if seg.Origin.Code == "" || seg.Destination.Code == "" || seg.Origin.Nation == "" || seg.Destination.Nation == "" {
			return ErrInvalidSegment
		}
	}
	if strings.TrimSpace(it.PaymentCurrency) == "" {
		return ErrMissingCurrency
	}
	// Sale windows are matched on the ticketing date.
	if it.TicketingDate.IsZero() {
		return ErrMissingTicketingDate
	}
	return nil
}

// Origin is the journey origin.
func (it *Itinerary) Origin() Point {
	if len(it.Segments) == 0 {
		return Point{}
	}
	return it.Segments[0].Origin
}

// Destination is the final destination of the last segment.
func (it *Itinerary) Destination() Point {
	if len(it.Segments) == 0 {
		return Point{}
	}
	return it.Segments[len(it.Segments)-1].Destination
}

// Domestic reports whether every point lies in the origin's nation.
func (it *Itinerary) Domestic() bool {
	origin := it.Origin().Nation
	for i := range it.Segments {
		if it.Segments[i].Origin.Nation != origin || it.Segments[i].Destination.Nation != origin {
			return false
		}
	}
	return true
}

// VisitedNations lists nations in the order the itinerary first touches them.
func (it *Itinerary) VisitedNations() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(n string) {
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for i := range it.Segments {
		add(it.Segments[i].Origin.Nation)
		for _, h := range it.Segments[i].HiddenStops {
			add(h.Nation)
		}
		add(it.Segments[i].Destination.Nation)
	}
	return out
}

// TravelDate is the first dated departure, or the ticketing date.
func (it *Itinerary) TravelDate() time.Time {
	for i := range it.Segments {
		if d := it.Segments[i].Departure; d != nil && !it.Segments[i].Open {
			return *d
		}
	}
	return it.TicketingDate
}
