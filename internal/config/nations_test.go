package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const nationsYAML = `
nations:
  us:
    rounding_unit: 0.01
    rounding_rule: n
    currency: usd
    tax_code_order: [us1, us2, xf]
    ordering: Modern
    first_nation: agent
    ticket_boxes: 3
  ca:
    rounding_unit: 0.01
    rounding_rule: N
    tax_code_order: [CA1, CA2, CA3]
    ordering: legacy
currencies:
  usd:
    rate: 1
    fare_unit: 1
  cad:
    rate: 1.36
    fare_unit: 1
zones:
  na: [us, ca]
spec_configs:
  us2:
    halftaxround: DOWN
`

func writeNations(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nations.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNationConfigHolder_LoadNormalizesKeys(t *testing.T) {
	holder, err := NewNationConfigHolder(Config{NationConfigPath: writeNations(t, nationsYAML)}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	us, ok := cfg.Nation("US")
	require.True(t, ok)
	assert.Equal(t, "N", us.RoundingRule)
	assert.Equal(t, "USD", us.Currency)
	assert.Equal(t, OrderingModern, us.Ordering)
	assert.Equal(t, []string{"US1", "US2", "XF"}, us.TaxCodeOrder)

	ca, ok := cfg.Nation("ca")
	require.True(t, ok)
	assert.Equal(t, OrderingLegacy, ca.Ordering)

	assert.Equal(t, []string{"US", "CA"}, cfg.ZoneMembers("na"))
	assert.InDelta(t, 1.36, cfg.Currencies["CAD"].Rate, 1e-9)

	v, ok := cfg.SpecParam("US2", "HALFTAXROUND")
	require.True(t, ok)
	assert.Equal(t, "DOWN", v)

	assert.Equal(t, []string{"YQ", "YR"}, cfg.CarrierFeeCodes)
	assert.Equal(t, []string{"XF"}, cfg.SegmentFeeCodes)
}

func TestNationConfigHolder_RejectsInvalidFile(t *testing.T) {
	body := `
nations:
  us:
    rounding_rule: sideways
`
	_, err := NewNationConfigHolder(Config{NationConfigPath: writeNations(t, body)}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNationConfigHolder_StoreKeepsPreviousOnInvalid(t *testing.T) {
	holder := NewStaticNationConfigHolder(DefaultTaxConfig())

	bad := DefaultTaxConfig()
	bad.Currencies["XXX"] = CurrencyConfig{Rate: 0}
	require.ErrorIs(t, holder.Store(bad), ErrInvalidConfig)

	_, ok := holder.Get().Currencies["XXX"]
	assert.False(t, ok)

	good := DefaultTaxConfig()
	good.Currencies["XXX"] = CurrencyConfig{Rate: 2, FareUnit: 1}
	require.NoError(t, holder.Store(good))
	assert.InDelta(t, 2.0, holder.Get().Currencies["XXX"].Rate, 1e-9)
}
