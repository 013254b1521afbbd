package currency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/airtax/internal/config"
)

// ConfigRates serves the rate table from the nation configuration.
type ConfigRates struct {
	holder *config.NationConfigHolder
}

func NewConfigRates(holder *config.NationConfigHolder) *ConfigRates {
	return &ConfigRates{holder: holder}
}

func (r *ConfigRates) Rate(_ context.Context, cur string, _ time.Time) (decimal.Decimal, error) {
	cur = strings.ToUpper(strings.TrimSpace(cur))
	if cur == "" {
		return decimal.Zero, ErrInvalidCurrency
	}
	if cur == NUC {
		return decimal.NewFromInt(1), nil
	}
	c, ok := r.holder.Get().Currencies[cur]
	if !ok || c.Rate <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrRateNotFound, cur)
	}
	return decimal.NewFromFloat(c.Rate), nil
}

// Currencies lists every configured currency code.
func (r *ConfigRates) Currencies() []string {
	cfg := r.holder.Get()
	out := make([]string, 0, len(cfg.Currencies))
	for code := range cfg.Currencies {
		out = append(out, code)
	}
	return out
}
