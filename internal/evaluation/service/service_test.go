package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/airtax/internal/amount"
	"github.com/smallbiznis/airtax/internal/behavior"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/currency"
	"github.com/smallbiznis/airtax/internal/evaluation/domain"
	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/sequencer"
	taxruledomain "github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/internal/taxrule/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var nextID snowflake.ID = 1000

func flat(code string, seq int, amt string) taxruledomain.TaxRuleRecord {
	nextID++
	return taxruledomain.TaxRuleRecord{
		ID: nextID, Code: code, Nation: "US", SeqNo: seq,
		TaxType: taxruledomain.TaxTypeFlat, TaxAmount: decimal.RequireFromString(amt), TaxCurrency: "USD",
		EffectiveDate: day(2020, 1, 1),
	}
}

func percent(code string, seq int, pct string) taxruledomain.TaxRuleRecord {
	r := flat(code, seq, pct)
	r.TaxType = taxruledomain.TaxTypePercentage
	r.TaxCurrency = ""
	return r
}

// usRules is a small US table: one superseded sequence, a tax levied on a
// code that sorts after it, one levied on a code never produced, a rule with
// broken data and a round-trip-only rule.
func usRules() []taxruledomain.TaxRuleRecord {
	us1 := percent("US1", 100, "7.5")
	us1.TravelType = taxruledomain.TravelDomestic
	us1.Loc1 = taxruledomain.Location{Type: taxruledomain.LocNation, Code: "US"}
	us1.Loc2 = taxruledomain.Location{Type: taxruledomain.LocNation, Code: "US"}

	zp := flat("ZP", 100, "5.00")
	zp.PerSegment = true

	xa := percent("XA", 100, "10")
	xa.TaxOnTaxCodes = []string{"ZP"}
	xa.TaxOnTaxExcl = true

	yc := percent("YC", 100, "10")
	yc.TaxOnTaxCodes = []string{"QQ"}

	broken := flat("XY", 100, "1.00")
	broken.TaxType = "X"

	roundTrip := flat("XF", 100, "4.50")
	roundTrip.ItineraryType = taxruledomain.ItineraryRoundTrip

	return []taxruledomain.TaxRuleRecord{
		us1,
		flat("US1", 200, "99.00"),
		zp,
		flat("AY", 100, "5.60"),
		xa,
		yc,
		broken,
		roundTrip,
	}
}

func dfwMia(pay string) *itinerary.Itinerary {
	dep := day(2025, 6, 1).Add(8 * time.Hour)
	arr := dep.Add(3 * time.Hour)
	return &itinerary.Itinerary{
		OneWay:               true,
		TicketingDate:        day(2025, 5, 1),
		TicketingAgentNation: "US",
		PaymentCurrency:      pay,
		Fare: itinerary.FarePath{
			BaseFare:     decimal.NewFromInt(200),
			BaseCurrency: "USD",
		},
		Segments: []itinerary.Segment{{
			Origin:           itinerary.Point{Code: "DFW", Nation: "US"},
			Destination:      itinerary.Point{Code: "MIA", Nation: "US"},
			Departure:        &dep,
			Arrival:          &arr,
			MarketingCarrier: "AA",
			FlightNumber:     100,
			Equipment:        "738",
		}},
	}
}

func newTestService(t *testing.T, rules []taxruledomain.TaxRuleRecord) (*Service, *tracetest.SpanRecorder) {
	t.Helper()
	holder := config.NewStaticNationConfigHolder(config.DefaultTaxConfig())
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return newService(serviceParams{
		Log:       zap.NewNop(),
		Snapshots: snapshot.NewStatic(rules),
		Holder:    holder,
		Registry:  behavior.NewRegistry(),
		Engine: amount.New(
			currency.NewConverter(currency.NewConfigRates(holder)),
			currency.NewFareRounder(holder),
			zap.NewNop(),
		),
		Sequencer:      sequencer.New(),
		TracerProvider: tp,
	}), recorder
}

func amounts(items []domain.TaxLineItem) map[string]string {
	out := make(map[string]string, len(items))
	for _, item := range items {
		out[item.Code] = item.Amount.StringFixed(2)
	}
	return out
}

func traceFor(set *domain.ComputedTaxSet, code string, seq int) domain.TraceRecord {
	var last domain.TraceRecord
	for _, rec := range set.Trace {
		if rec.Code == code && rec.SeqNo == seq {
			last = rec
		}
	}
	return last
}

func TestEvaluate_FoldsRulesInOrder(t *testing.T) {
	svc, recorder := newTestService(t, usRules())

	set, err := svc.Evaluate(context.Background(), 4, dfwMia("USD"))
	require.NoError(t, err)
	require.True(t, set.Frozen())
	assert.Equal(t, 4, set.ItineraryIndex)
	assert.False(t, set.Incomplete)

	assert.Equal(t, map[string]string{"US1": "15.00", "ZP": "5.00", "AY": "5.60", "XA": "0.50"}, amounts(set.Fare))
	assert.Empty(t, set.Ancillary)

	var order []string
	rolled := map[string]bool{}
	for _, item := range set.Fare {
		order = append(order, item.Code)
		rolled[item.Code] = item.RolledUp
		assert.Equal(t, "USD", item.Currency)
	}
	assert.Equal(t, []string{"US1", "ZP", "AY", "XA"}, order)
	assert.Equal(t, map[string]bool{"US1": false, "ZP": false, "AY": true, "XA": true}, rolled)
	assert.Equal(t, "26.10", set.Total().StringFixed(2))

	assert.Equal(t, outcomeSuperseded, traceFor(set, "US1", 200).Note)
	assert.Equal(t, "tax_on_tax", traceFor(set, "YC", 100).Predicate)
	assert.Equal(t, "trip_type", traceFor(set, "XF", 100).Predicate)
	assert.Equal(t, "rule_data", traceFor(set, "XY", 100).Predicate)

	xa := traceFor(set, "XA", 100)
	assert.True(t, xa.Passed)
	assert.Equal(t, "5.00", xa.Base.StringFixed(2))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "evaluation.itinerary", spans[0].Name())
}

func TestEvaluate_ConversionFailureMarksIncomplete(t *testing.T) {
	svc, _ := newTestService(t, usRules())

	set, err := svc.Evaluate(context.Background(), 0, dfwMia("ZZZ"))
	require.NoError(t, err)
	assert.True(t, set.Incomplete)
	assert.Empty(t, set.Fare)

	reasons := map[string]string{}
	for _, f := range set.Failures {
		reasons[f.Code] = f.Reason
	}
	assert.Equal(t, domain.ReasonConversion, reasons["US1"])
	assert.Equal(t, domain.ReasonConversion, reasons["AY"])
	assert.Equal(t, domain.ReasonConversion, reasons["ZP"])

	// the failed first sequence still settles the code
	assert.Equal(t, outcomeSuperseded, traceFor(set, "US1", 200).Note)
}

func TestEvaluate_FrozenSetPanicsOnAppend(t *testing.T) {
	svc, _ := newTestService(t, usRules())

	set, err := svc.Evaluate(context.Background(), 0, dfwMia("USD"))
	require.NoError(t, err)
	assert.PanicsWithValue(t, domain.ErrFrozen, func() {
		set.Append(domain.TaxLineItem{Code: "US1"})
	})
}

func TestEvaluate_InvalidItinerary(t *testing.T) {
	svc, _ := newTestService(t, usRules())

	it := dfwMia("USD")
	it.Segments = nil
	set, err := svc.Evaluate(context.Background(), 2, it)
	assert.ErrorIs(t, err, domain.ErrInvalidItinerary)
	assert.ErrorIs(t, err, itinerary.ErrNoSegments)
	assert.True(t, set.Incomplete)
	assert.True(t, set.Frozen())
	assert.Equal(t, domain.ReasonInvalid, set.Failures[0].Reason)
}

func TestEvaluate_MissingTicketingDateIsInvalid(t *testing.T) {
	svc, _ := newTestService(t, []taxruledomain.TaxRuleRecord{flat("AY", 100, "5.60")})

	it := dfwMia("USD")
	it.TicketingDate = time.Time{}
	set, err := svc.Evaluate(context.Background(), 0, it)
	assert.ErrorIs(t, err, domain.ErrInvalidItinerary)
	assert.ErrorIs(t, err, itinerary.ErrMissingTicketingDate)
	assert.True(t, set.Incomplete)
	assert.True(t, set.Frozen())
	assert.Empty(t, set.Fare)
	require.Len(t, set.Failures, 1)
	assert.Equal(t, domain.ReasonInvalid, set.Failures[0].Reason)
}

func TestEvaluate_TaxOnTaxWaitsForEveryBaseCode(t *testing.T) {
	// AY sorts before XA and ZP after it; both belong in the base.
	xa := percent("XA", 100, "10")
	xa.TaxOnTaxCodes = []string{"AY", "ZP"}
	xa.TaxOnTaxExcl = true
	svc, _ := newTestService(t, []taxruledomain.TaxRuleRecord{
		flat("AY", 100, "5.00"),
		xa,
		flat("ZP", 100, "5.00"),
	})

	set, err := svc.Evaluate(context.Background(), 0, dfwMia("USD"))
	require.NoError(t, err)
	assert.False(t, set.Incomplete)
	assert.Equal(t, map[string]string{"AY": "5.00", "ZP": "5.00", "XA": "1.00"}, amounts(set.Items()))

	rec := traceFor(set, "XA", 100)
	assert.True(t, rec.Passed)
	assert.Equal(t, "10.00", rec.Base.StringFixed(2))
}

func TestEvaluate_TaxOnTaxChainsRunInDependencyOrder(t *testing.T) {
	// XB is levied on XC, which is levied on AY; XB sorts first.
	xb := percent("XB", 100, "10")
	xb.TaxOnTaxCodes = []string{"XC"}
	xb.TaxOnTaxExcl = true
	xc := percent("XC", 100, "50")
	xc.TaxOnTaxCodes = []string{"AY"}
	xc.TaxOnTaxExcl = true
	svc, _ := newTestService(t, []taxruledomain.TaxRuleRecord{flat("AY", 100, "10.00"), xb, xc})

	set, err := svc.Evaluate(context.Background(), 0, dfwMia("USD"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"AY": "10.00", "XC": "5.00", "XB": "0.50"}, amounts(set.Items()))
}

func TestEvaluate_DeferredCodeKeepsSequenceOrder(t *testing.T) {
	// The first sequence of XA is levied on ZP; the flat second sequence must
	// not win just because it needs no other tax.
	xa := percent("XA", 100, "10")
	xa.TaxOnTaxCodes = []string{"ZP"}
	xa.TaxOnTaxExcl = true
	svc, _ := newTestService(t, []taxruledomain.TaxRuleRecord{
		xa,
		flat("XA", 200, "9.00"),
		flat("ZP", 100, "5.00"),
	})

	set, err := svc.Evaluate(context.Background(), 0, dfwMia("USD"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ZP": "5.00", "XA": "0.50"}, amounts(set.Items()))
	assert.Equal(t, outcomeSuperseded, traceFor(set, "XA", 200).Note)
}

func TestEvaluate_CancelledContextAborts(t *testing.T) {
	svc, _ := newTestService(t, usRules())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	set, err := svc.Evaluate(ctx, 0, dfwMia("USD"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, set.Incomplete)
	assert.True(t, set.Frozen())
	assert.Empty(t, set.Fare)
	assert.Equal(t, domain.ReasonAborted, set.Failures[0].Reason)
}

func TestEvaluate_AncillaryBucket(t *testing.T) {
	bag := flat("OB", 100, "12.00")
	bag.AncillaryFee = true
	svc, _ := newTestService(t, []taxruledomain.TaxRuleRecord{flat("AY", 100, "5.60"), bag})

	set, err := svc.Evaluate(context.Background(), 0, dfwMia("USD"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"AY": "5.60"}, amounts(set.Fare))
	assert.Equal(t, map[string]string{"OB": "12.00"}, amounts(set.Ancillary))
}
