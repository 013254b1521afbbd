package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_nation_config")

const (
	OrderingLegacy = "legacy"
	OrderingModern = "modern"

	FirstNationAgent  = "agent"
	FirstNationOrigin = "origin"
)

// TaxConfig is the nation-level reference data the engine reads while evaluating.
type TaxConfig struct {
	Nations         map[string]NationConfig      `mapstructure:"nations"`
	Currencies      map[string]CurrencyConfig    `mapstructure:"currencies"`
	Zones           map[string][]string          `mapstructure:"zones"`
	SpecConfigs     map[string]map[string]string `mapstructure:"spec_configs"`
	CarrierFeeCodes []string                     `mapstructure:"carrier_fee_codes"`
	SegmentFeeCodes []string                     `mapstructure:"segment_fee_codes"`
}

type NationConfig struct {
	RoundingUnit      float64  `mapstructure:"rounding_unit"`
	RoundingRule      string   `mapstructure:"rounding_rule"`
	Currency          string   `mapstructure:"currency"`
	TaxCodeOrder      []string `mapstructure:"tax_code_order"`
	Ordering          string   `mapstructure:"ordering"`
	FirstNation       string   `mapstructure:"first_nation"`
	HistoricOverrides bool     `mapstructure:"historic_overrides"`
	TicketBoxes       int      `mapstructure:"ticket_boxes"`
}

// CurrencyConfig carries the rate against one NUC and the fare rounding unit.
type CurrencyConfig struct {
	Rate     float64 `mapstructure:"rate"`
	FareUnit float64 `mapstructure:"fare_unit"`
}

func DefaultTaxConfig() TaxConfig {
	return TaxConfig{
		Nations: map[string]NationConfig{
			"US": {RoundingUnit: 0.01, RoundingRule: "N", Currency: "USD", TaxCodeOrder: []string{"US1", "US2", "ZP", "AY", "XF", "YC", "XY", "XA"}, Ordering: OrderingModern, FirstNation: FirstNationAgent, TicketBoxes: 3},
			"CA": {RoundingUnit: 0.01, RoundingRule: "N", Currency: "CAD", TaxCodeOrder: []string{"CA1", "CA2", "CA3", "SQ", "RC"}, Ordering: OrderingLegacy, FirstNation: FirstNationAgent, TicketBoxes: 3},
			"GB": {RoundingUnit: 1, RoundingRule: "D", Currency: "GBP", TaxCodeOrder: []string{"GB", "UB"}, Ordering: OrderingModern, FirstNation: FirstNationOrigin, HistoricOverrides: true, TicketBoxes: 3},
			"JP": {RoundingUnit: 1, RoundingRule: "N", Currency: "JPY", TaxCodeOrder: []string{"SW", "OI"}, Ordering: OrderingLegacy, FirstNation: FirstNationAgent, TicketBoxes: 3},
			"MY": {RoundingUnit: 0.01, RoundingRule: "N", Currency: "MYR", TaxCodeOrder: []string{"MY", "D8"}, Ordering: OrderingLegacy, FirstNation: FirstNationAgent, TicketBoxes: 3},
		},
		Currencies: map[string]CurrencyConfig{
			"NUC": {Rate: 1, FareUnit: 0.01},
			"USD": {Rate: 1, FareUnit: 0.01},
			"CAD": {Rate: 1.36, FareUnit: 0.01},
			"GBP": {Rate: 0.79, FareUnit: 1},
			"EUR": {Rate: 0.92, FareUnit: 0.01},
			"JPY": {Rate: 149.5, FareUnit: 100},
			"MYR": {Rate: 4.71, FareUnit: 1},
		},
		Zones: map[string][]string{
			"NA": {"US", "CA", "MX"},
			"EU": {"GB", "FR", "DE", "IT", "ES", "NL"},
		},
		SpecConfigs: map[string]map[string]string{
			"US2": {"HALFTAXROUND": "UP"},
		},
		CarrierFeeCodes: []string{"YQ", "YR"},
		SegmentFeeCodes: []string{"XF"},
	}
}

// Nation returns the configuration for the nation code.
func (c TaxConfig) Nation(code string) (NationConfig, bool) {
	n, ok := c.Nations[strings.ToUpper(code)]
	return n, ok
}

// SpecParam looks up one parameter of a named spec-config.
func (c TaxConfig) SpecParam(name, key string) (string, bool) {
	params, ok := c.SpecConfigs[strings.ToUpper(name)]
	if !ok {
		return "", false
	}
	v, ok := params[strings.ToUpper(key)]
	return v, ok
}

// ZoneMembers returns the nation codes of a zone.
func (c TaxConfig) ZoneMembers(zone string) []string {
	return c.Zones[strings.ToUpper(zone)]
}

type NationConfigHolder struct {
	current atomic.Value // holds TaxConfig
}

// NewNationConfigHolder reads nations.yml and keeps it fresh on file changes.
func NewNationConfigHolder(cfg Config, log *zap.Logger) (*NationConfigHolder, error) {
	log = log.Named("nation-config")
	v := viper.New()

	if cfg.NationConfigPath != "" {
		v.SetConfigFile(cfg.NationConfigPath)
	} else {
		v.SetConfigName("nations")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/airtax/config")
		v.AddConfigPath("/etc/airtax")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AIRTAX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &NationConfigHolder{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("nations config not found, using defaults")
		holder.current.Store(normalizeTaxConfig(DefaultTaxConfig()))
		return holder, nil
	}

	loaded, err := decodeTaxConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(loaded)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeTaxConfig(v)
		if err != nil {
			log.Warn("nations config reload ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("nations config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticNationConfigHolder wraps a fixed configuration.
func NewStaticNationConfigHolder(cfg TaxConfig) *NationConfigHolder {
	holder := &NationConfigHolder{}
	holder.current.Store(normalizeTaxConfig(cfg))
	return holder
}

func (h *NationConfigHolder) Get() TaxConfig {
	return h.current.Load().(TaxConfig)
}

// Store validates and swaps the configuration.
func (h *NationConfigHolder) Store(cfg TaxConfig) error {
	cfg = normalizeTaxConfig(cfg)
	if err := validateTaxConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func decodeTaxConfig(v *viper.Viper) (TaxConfig, error) {
	var cfg TaxConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return TaxConfig{}, err
	}
	cfg = normalizeTaxConfig(cfg)
	if err := validateTaxConfig(cfg); err != nil {
		return TaxConfig{}, err
	}
	return cfg, nil
}

// viper lower-cases every map key; codes are upper case everywhere else.
func normalizeTaxConfig(cfg TaxConfig) TaxConfig {
	out := TaxConfig{
		Nations:         make(map[string]NationConfig, len(cfg.Nations)),
		Currencies:      make(map[string]CurrencyConfig, len(cfg.Currencies)),
		Zones:           make(map[string][]string, len(cfg.Zones)),
		SpecConfigs:     make(map[string]map[string]string, len(cfg.SpecConfigs)),
		CarrierFeeCodes: upperAll(cfg.CarrierFeeCodes),
		SegmentFeeCodes: upperAll(cfg.SegmentFeeCodes),
	}
	for code, n := range cfg.Nations {
		n.RoundingRule = strings.ToUpper(strings.TrimSpace(n.RoundingRule))
		n.Currency = strings.ToUpper(strings.TrimSpace(n.Currency))
		n.Ordering = strings.ToLower(strings.TrimSpace(n.Ordering))
		n.FirstNation = strings.ToLower(strings.TrimSpace(n.FirstNation))
		n.TaxCodeOrder = upperAll(n.TaxCodeOrder)
		out.Nations[strings.ToUpper(code)] = n
	}
	for code, c := range cfg.Currencies {
		out.Currencies[strings.ToUpper(code)] = c
	}
	for zone, members := range cfg.Zones {
		out.Zones[strings.ToUpper(zone)] = upperAll(members)
	}
	for name, params := range cfg.SpecConfigs {
		normalized := make(map[string]string, len(params))
		for k, v := range params {
			normalized[strings.ToUpper(k)] = strings.TrimSpace(v)
		}
		out.SpecConfigs[strings.ToUpper(name)] = normalized
	}
	if len(out.CarrierFeeCodes) == 0 {
		out.CarrierFeeCodes = []string{"YQ", "YR"}
	}
	if len(out.SegmentFeeCodes) == 0 {
		out.SegmentFeeCodes = []string{"XF"}
	}
	return out
}

func validateTaxConfig(cfg TaxConfig) error {
	for code, n := range cfg.Nations {
		switch n.RoundingRule {
		case "", "U", "D", "N":
		default:
			return fmt.Errorf("%w: nation %s rounding_rule %q", ErrInvalidConfig, code, n.RoundingRule)
		}
		switch n.Ordering {
		case "", OrderingLegacy, OrderingModern:
		default:
			return fmt.Errorf("%w: nation %s ordering %q", ErrInvalidConfig, code, n.Ordering)
		}
		switch n.FirstNation {
		case "", FirstNationAgent, FirstNationOrigin:
		default:
			return fmt.Errorf("%w: nation %s first_nation %q", ErrInvalidConfig, code, n.FirstNation)
		}
		if n.RoundingUnit < 0 || n.TicketBoxes < 0 {
			return fmt.Errorf("%w: nation %s has negative values", ErrInvalidConfig, code)
		}
	}
	for code, c := range cfg.Currencies {
		if c.Rate <= 0 {
			return fmt.Errorf("%w: currency %s rate must be positive", ErrInvalidConfig, code)
		}
		if c.FareUnit < 0 {
			return fmt.Errorf("%w: currency %s fare_unit must not be negative", ErrInvalidConfig, code)
		}
	}
	return nil
}

func upperAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
