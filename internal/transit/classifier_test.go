package transit

import (
	"testing"
	"time"

	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/stretchr/testify/assert"
)

var base = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func ts(day, hour, minute int) *time.Time {
	t := base.AddDate(0, 0, day-1).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	return &t
}

func seg(from, fromNation, to, toNation, carrier string, flight int, dep, arr *time.Time) itinerary.Segment {
	return itinerary.Segment{
		Origin:           itinerary.Point{Code: from, Nation: fromNation},
		Destination:      itinerary.Point{Code: to, Nation: toNation},
		Departure:        dep,
		Arrival:          arr,
		MarketingCarrier: carrier,
		FlightNumber:     flight,
		Equipment:        "320",
	}
}

func allCrossings(hours int) domain.TransitRestriction {
	return domain.TransitRestriction{
		Hours: hours, Minutes: -1,
		DomDom: true, DomIntl: true, IntlDom: true, IntlIntl: true,
		SurfDom: true, SurfIntl: true, OfflineCxr: true,
	}
}

// canadianFixture is a seven segment journey with gaps of 14h, 6h (over
// midnight), 2h, 5h (dom-intl), 1h (intl-intl) and 3h (intl-dom).
func canadianFixture() []itinerary.Segment {
	return []itinerary.Segment{
		seg("YVR", "CA", "YYC", "CA", "AC", 100, ts(1, 4, 30), ts(1, 6, 0)),
		seg("YYC", "CA", "YYZ", "CA", "AC", 100, ts(1, 20, 0), ts(1, 22, 0)),
		seg("YYZ", "CA", "YOW", "CA", "AC", 200, ts(2, 4, 0), ts(2, 5, 0)),
		seg("YOW", "CA", "YUL", "CA", "AC", 300, ts(2, 7, 0), ts(2, 10, 0)),
		seg("YUL", "CA", "ORD", "US", "AC", 400, ts(2, 15, 0), ts(2, 17, 0)),
		seg("ORD", "US", "YYZ", "CA", "AC", 500, ts(2, 18, 0), ts(2, 20, 0)),
		seg("YYZ", "CA", "YVR", "CA", "AC", 600, ts(2, 23, 0), ts(3, 1, 0)),
	}
}

func TestStopoverMask_CanadianFixture(t *testing.T) {
	segs := canadianFixture()

	sameFlight := allCrossings(24)
	sameFlight.SameFlight = true

	rules := []struct {
		name string
		r    domain.TransitRestriction
		want uint64
	}{
		{"CA1/100", allCrossings(12), 1},
		{"CA1/200", allCrossings(4), 11},
		{"CA2/100", allCrossings(24), 0},
		{"CA2/200", domain.TransitRestriction{SameDay: true}, 2},
		{"CA3", sameFlight, 1},
	}

	got := make([]uint64, 0, len(rules))
	for _, rule := range rules {
		mask := StopoverMask(segs, rule.r, Options{})
		assert.Equal(t, rule.want, mask, rule.name)
		got = append(got, mask)
	}
	assert.Equal(t, []uint64{1, 11, 0, 2, 1}, got)
}

func TestClassify_ThresholdBoundaryIsConnection(t *testing.T) {
	r := domain.TransitRestriction{Hours: 4, Minutes: 30, DomDom: true}
	a := seg("DFW", "US", "ORD", "US", "AA", 1, ts(1, 1, 0), ts(1, 3, 0))

	exact := seg("ORD", "US", "BOS", "US", "AA", 2, ts(1, 7, 30), ts(1, 9, 0))
	assert.Equal(t, Connection, Classify(&a, &exact, r, Options{}))

	over := seg("ORD", "US", "BOS", "US", "AA", 2, ts(1, 7, 31), ts(1, 9, 0))
	assert.Equal(t, Stopover, Classify(&a, &over, r, Options{}))
}

func TestClassify_ExemptUnits(t *testing.T) {
	a := seg("DFW", "US", "ORD", "US", "AA", 1, ts(1, 1, 0), ts(1, 3, 0))
	b := seg("ORD", "US", "BOS", "US", "AA", 2, ts(1, 4, 0), ts(1, 6, 0))

	minutesOnly := domain.TransitRestriction{Hours: -1, Minutes: 45, DomDom: true}
	assert.Equal(t, Stopover, Classify(&a, &b, minutesOnly, Options{}))

	bothExempt := domain.TransitRestriction{Hours: -1, Minutes: -1, DomDom: true}
	far := seg("ORD", "US", "BOS", "US", "AA", 2, ts(5, 4, 0), ts(5, 6, 0))
	assert.Equal(t, Connection, Classify(&a, &far, bothExempt, Options{}))
}

func TestClassify_ForcedStopoverWinsUnderMirror(t *testing.T) {
	r := allCrossings(24)
	for _, gapHours := range []int{0, 1, 5, 23} {
		a := seg("YVR", "CA", "YYC", "CA", "AC", 1, ts(1, 0, 0), ts(1, 1, 0))
		a.ForcedStopover = true
		b := seg("YYC", "CA", "YYZ", "CA", "AC", 2, ts(1, 1+gapHours, 0), ts(1, 2+gapHours, 0))

		assert.Equal(t, Stopover, Classify(&a, &b, r, Options{}), "gap %dh", gapHours)
		assert.Equal(t, Stopover, Classify(&a, &b, r, Options{MirrorImage: true}), "mirror gap %dh", gapHours)
	}
}

func TestClassify_ForcedPrecedence(t *testing.T) {
	a := seg("YVR", "CA", "YYC", "CA", "AC", 1, ts(1, 0, 0), ts(1, 1, 0))
	a.ForcedStopover = true
	b := seg("YYC", "CA", "YYZ", "CA", "AC", 2, ts(1, 2, 0), ts(1, 3, 0))

	taxOnly := allCrossings(4)
	taxOnly.TaxOnly = true

	assert.Equal(t, Connection, Classify(&a, &b, taxOnly, Options{}))
	assert.Equal(t, Stopover, Classify(&a, &b, taxOnly, Options{Precedence: ForcedAlways}))
	assert.Equal(t, Connection, Classify(&a, &b, allCrossings(4), Options{Precedence: ForcedNever}))

	a.ForcedStopover = false
	a.ForcedConnection = true
	far := seg("YYC", "CA", "YYZ", "CA", "AC", 2, ts(3, 2, 0), ts(3, 3, 0))
	assert.Equal(t, Connection, Classify(&a, &far, allCrossings(4), Options{}))
}

func TestClassify_DegradedInput(t *testing.T) {
	r := allCrossings(4)
	a := seg("DFW", "US", "ORD", "US", "AA", 1, ts(1, 1, 0), ts(1, 3, 0))

	assert.Equal(t, Stopover, Classify(nil, &a, r, Options{}))
	assert.Equal(t, Stopover, Classify(&a, nil, r, Options{}))

	open := seg("ORD", "US", "BOS", "US", "AA", 2, nil, nil)
	open.Open = true
	assert.Equal(t, Connection, Classify(&a, &open, r, Options{}))

	inverted := seg("ORD", "US", "BOS", "US", "AA", 2, ts(1, 2, 0), ts(1, 4, 0))
	assert.Equal(t, Stopover, Classify(&a, &inverted, r, Options{}))
}

func TestClassify_TrainLandToAir(t *testing.T) {
	r := domain.TransitRestriction{Hours: 24, Minutes: -1, DomDom: true, DomIntl: true, IntlDom: true, IntlIntl: true}
	train := seg("QQS", "GB", "LHR", "GB", "2V", 10, ts(1, 6, 0), ts(1, 8, 0))
	train.Equipment = "TRAIN"
	flight := seg("LHR", "GB", "EDI", "GB", "BA", 20, ts(1, 10, 0), ts(1, 11, 30))

	assert.Equal(t, Connection, Classify(&train, &flight, r, Options{LandToAirConnection: true}))
	assert.Equal(t, Stopover, Classify(&train, &flight, r, Options{LandToAirConnection: false}))
	assert.Equal(t, CrossingSurfDom, CrossingOf(&train, &flight))
}

func TestClassify_MirrorSwapsCrossingDirection(t *testing.T) {
	r := domain.TransitRestriction{Hours: 4, Minutes: -1, DomIntl: true}
	dom := seg("YOW", "CA", "YUL", "CA", "AC", 1, ts(1, 6, 0), ts(1, 7, 0))
	intl := seg("YUL", "CA", "ORD", "US", "AC", 2, ts(1, 8, 0), ts(1, 10, 0))

	assert.Equal(t, CrossingDomIntl, CrossingOf(&dom, &intl))
	assert.Equal(t, Connection, Classify(&dom, &intl, r, Options{}))
	assert.Equal(t, Stopover, Classify(&dom, &intl, r, Options{MirrorImage: true}))
}

func TestClassify_SameAndNextDay(t *testing.T) {
	a := seg("YYC", "CA", "YYZ", "CA", "AC", 1, ts(1, 20, 0), ts(1, 22, 0))
	b := seg("YYZ", "CA", "YOW", "CA", "AC", 2, ts(2, 4, 0), ts(2, 5, 0))

	assert.Equal(t, Stopover, Classify(&a, &b, domain.TransitRestriction{SameDay: true}, Options{}))
	assert.Equal(t, Connection, Classify(&a, &b, domain.TransitRestriction{SameDay: true, NextDay: true}, Options{}))

	c := seg("YOW", "CA", "YUL", "CA", "AC", 3, ts(4, 4, 0), ts(4, 5, 0))
	assert.Equal(t, Stopover, Classify(&b, &c, domain.TransitRestriction{NextDay: true}, Options{}))
}

func TestClassify_OfflineCarrier(t *testing.T) {
	a := seg("DFW", "US", "ORD", "US", "AA", 1, ts(1, 1, 0), ts(1, 3, 0))
	b := seg("ORD", "US", "BOS", "US", "UA", 2, ts(1, 4, 0), ts(1, 6, 0))

	assert.Equal(t, CrossingOffline, CrossingOf(&a, &b))
	assert.Equal(t, Stopover, Classify(&a, &b, domain.TransitRestriction{Hours: 4, Minutes: -1, DomDom: true}, Options{}))
	assert.Equal(t, Connection, Classify(&a, &b, domain.TransitRestriction{Hours: 4, Minutes: -1, OfflineCxr: true}, Options{}))
}
