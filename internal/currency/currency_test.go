package currency

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRound(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		unit   string
		mode   RoundMode
		want   string
	}{
		{"up to dime", "8.05", "0.1", RoundUp, "8.1"},
		{"down to dime", "8.05", "0.1", RoundDown, "8"},
		{"nearest cent", "65.448", "0.01", RoundNearest, "65.45"},
		{"nearest half up", "0.125", "0.01", RoundNearest, "0.13"},
		{"exact stays for up", "8.10", "0.1", RoundUp, "8.1"},
		{"noise below unit ignored by up", "8.1000000000001", "0.1", RoundUp, "8.1"},
		{"whole units", "1234.2", "100", RoundUp, "1300"},
		{"none", "1.2345", "0.01", RoundNone, "1.2345"},
		{"zero unit", "1.2345", "0", RoundNearest, "1.2345"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Round(d(tc.amount), d(tc.unit), tc.mode)
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestParseRoundMode(t *testing.T) {
	mode, ok := ParseRoundMode("UP")
	assert.True(t, ok)
	assert.Equal(t, RoundUp, mode)

	mode, ok = ParseRoundMode("down")
	assert.True(t, ok)
	assert.Equal(t, RoundDown, mode)

	mode, ok = ParseRoundMode("NONE")
	assert.True(t, ok)
	assert.Equal(t, RoundNone, mode)

	mode, ok = ParseRoundMode("N")
	assert.True(t, ok)
	assert.Equal(t, RoundNearest, mode)

	_, ok = ParseRoundMode("")
	assert.False(t, ok)
}

func testHolder() *config.NationConfigHolder {
	cfg := config.DefaultTaxConfig()
	cfg.Currencies["XXX"] = config.CurrencyConfig{Rate: 8.08, FareUnit: 1}
	return config.NewStaticNationConfigHolder(cfg)
}

func TestConverter_ThroughNUC(t *testing.T) {
	conv := NewConverter(NewConfigRates(testHolder()))
	ctx := context.Background()
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := conv.Convert(ctx, New(d("8.10"), "USD"), "XXX", date)
	require.NoError(t, err)
	assert.Equal(t, "XXX", got.Currency)
	assert.True(t, got.Amount.Equal(d("65.448")), got.Amount.String())

	same, err := conv.Convert(ctx, New(d("10"), "usd"), "USD", date)
	require.NoError(t, err)
	assert.True(t, same.Amount.Equal(d("10")))

	_, err = conv.Convert(ctx, New(d("10"), "USD"), "ZZZ", date)
	assert.ErrorIs(t, err, ErrRateNotFound)
}

func TestFareRounder_RoundsUpToFareUnit(t *testing.T) {
	r := NewFareRounder(testHolder())

	assert.True(t, r.RoundFare(New(d("123.401"), "USD")).Amount.Equal(d("123.41")))
	assert.True(t, r.RoundFare(New(d("12301"), "JPY")).Amount.Equal(d("12400")))
	assert.True(t, r.RoundFare(New(d("12.2"), "XXX")).Amount.Equal(d("13")))
}
