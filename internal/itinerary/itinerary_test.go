package itinerary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(h int) *time.Time {
	t := time.Date(2025, 5, 1, h, 0, 0, 0, time.UTC)
	return &t
}

func pt(code, nation string) Point { return Point{Code: code, Nation: nation} }

func TestItinerary_Helpers(t *testing.T) {
	it := Itinerary{
		PaymentCurrency: "USD",
		TicketingDate:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Segments: []Segment{
			{Origin: pt("JFK", "US"), Destination: pt("LHR", "GB"), Departure: at(1), Arrival: at(8)},
			{Origin: pt("LHR", "GB"), Destination: pt("CDG", "FR"), Departure: at(10), Arrival: at(11),
				HiddenStops: []Point{pt("BRU", "BE")}},
			{Origin: pt("CDG", "FR"), Destination: pt("JFK", "US"), Open: true},
		},
	}

	assert.NoError(t, it.Validate())
	assert.Equal(t, []string{"US", "GB", "BE", "FR"}, it.VisitedNations())
	assert.False(t, it.Domestic())
	assert.Equal(t, "JFK", it.Origin().Code)
	assert.Equal(t, "JFK", it.Destination().Code)
	assert.Equal(t, *at(1), it.TravelDate())
	assert.True(t, it.Segments[2].Undated())
	assert.True(t, it.Segments[0].International())
}

func TestItinerary_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Itinerary{PaymentCurrency: "USD"}).Validate(), ErrNoSegments)

	bad := Itinerary{PaymentCurrency: "USD", Segments: []Segment{{Origin: pt("DFW", ""), Destination: pt("MIA", "US")}}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSegment)

	noCur := Itinerary{Segments: []Segment{{Origin: pt("DFW", "US"), Destination: pt("MIA", "US")}}}
	assert.ErrorIs(t, noCur.Validate(), ErrMissingCurrency)

	undated := Itinerary{PaymentCurrency: "USD", Segments: []Segment{{Origin: pt("DFW", "US"), Destination: pt("MIA", "US")}}}
	assert.ErrorIs(t, undated.Validate(), ErrMissingTicketingDate)

	undated.TicketingDate = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, undated.Validate())
}

func TestSegment_SurfaceAndCarrier(t *testing.T) {
	train := Segment{Equipment: "train", MarketingCarrier: "2V"}
	assert.True(t, train.Surface())
	assert.Equal(t, "2V", train.Carrier())

	jet := Segment{Equipment: "737", MarketingCarrier: "AA", OperatingCarrier: "MQ"}
	assert.False(t, jet.Surface())
	assert.Equal(t, "MQ", jet.Carrier())
}
