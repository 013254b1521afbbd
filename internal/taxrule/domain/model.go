package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TaxType string

const (
	TaxTypePercentage TaxType = "P"
	TaxTypeFlat       TaxType = "F"
)

// LocType qualifies a location code.
type LocType string

const (
	LocAny    LocType = ""
	LocNation LocType = "N"
	LocCity   LocType = "C"
	LocState  LocType = "S"
	LocZone   LocType = "Z"
)

// Geography is the trip-type geometry between loc1 and loc2.
type Geography string

const (
	GeographyAny      Geography = ""
	GeographyFrom     Geography = "F"
	GeographyBetween  Geography = "B"
	GeographyWithin   Geography = "W"
	GeographyIncludes Geography = "A"
)

type Appl string

const (
	ApplEither      Appl = ""
	ApplOrigin      Appl = "O"
	ApplDestination Appl = "D"
)

type TravelType string

const (
	TravelAny           TravelType = ""
	TravelDomestic      TravelType = "D"
	TravelInternational TravelType = "I"
)

type ItineraryType string

const (
	ItineraryAny       ItineraryType = ""
	ItineraryRoundTrip ItineraryType = "O"
	ItineraryOneWay    ItineraryType = "W"
)

type RoundRule string

const (
	RoundDefault RoundRule = ""
	RoundUp      RoundRule = "U"
	RoundDown    RoundRule = "D"
	RoundNearest RoundRule = "N"
)

const (
	FormOfPaymentCash   = "CASH"
	FormOfPaymentCheck  = "CHECK"
	FormOfPaymentCredit = "CREDIT"
)

type Location struct {
	Type    LocType `gorm:"type:text" json:"type,omitempty"`
	Code    string  `gorm:"type:text" json:"code,omitempty"`
	Exclude bool    `json:"exclude,omitempty"`
}

func (l Location) IsBlank() bool {
	return l.Type == LocAny || l.Code == ""
}

type PassengerRestriction struct {
	PaxType string `json:"pax_type,omitempty"`
	MinAge  int    `json:"min_age,omitempty"`
	MaxAge  int    `json:"max_age,omitempty"`
}

// TransitRestriction decides which gaps between segments are connections.
// A negative Hours or Minutes exempts that unit from the time comparison.
type TransitRestriction struct {
	Hours      int  `json:"hours"`
	Minutes    int  `json:"minutes"`
	SameDay    bool `json:"same_day,omitempty"`
	NextDay    bool `json:"next_day,omitempty"`
	SameFlight bool `json:"same_flight,omitempty"`

	DomDom     bool `json:"dom_dom,omitempty"`
	DomIntl    bool `json:"dom_intl,omitempty"`
	IntlDom    bool `json:"intl_dom,omitempty"`
	IntlIntl   bool `json:"intl_intl,omitempty"`
	SurfDom    bool `json:"surf_dom,omitempty"`
	SurfIntl   bool `json:"surf_intl,omitempty"`
	OfflineCxr bool `json:"offline_cxr,omitempty"`

	Via     Location `json:"via,omitempty"`
	TaxOnly bool     `json:"tax_only,omitempty"`
}

// Threshold returns the connection window; ok is false when both units are exempt.
func (t TransitRestriction) Threshold() (d time.Duration, ok bool) {
	if t.Hours < 0 && t.Minutes < 0 {
		return 0, false
	}
	if t.Hours > 0 {
		d += time.Duration(t.Hours) * time.Hour
	}
	if t.Minutes > 0 {
		d += time.Duration(t.Minutes) * time.Minute
	}
	return d, true
}

// TaxRuleRecord is one regulatory tax rule. It is read-only during evaluation.
type TaxRuleRecord struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Code             string       `gorm:"type:text;not null;uniqueIndex:ux_tax_rules_code_seq" json:"code"`
	Nation           string       `gorm:"type:text;not null;index" json:"nation"`
	SeqNo            int          `gorm:"column:seq_no;not null;uniqueIndex:ux_tax_rules_code_seq" json:"seq_no"`
	SpecialProcessNo int          `gorm:"column:special_process_no;not null;default:0" json:"special_process_no"`
	SpecConfigName   string       `gorm:"column:spec_config_name;type:text" json:"spec_config_name,omitempty"`

	TaxType     TaxType         `gorm:"column:tax_type;type:text;not null" json:"tax_type"`
	TaxAmount   decimal.Decimal `gorm:"column:tax_amount;type:numeric(18,6);not null" json:"tax_amount"`
	TaxCurrency string          `gorm:"column:tax_currency;type:text" json:"tax_currency,omitempty"`
	PerSegment  bool            `gorm:"column:per_segment" json:"per_segment,omitempty"`

	EffectiveDate          time.Time  `gorm:"column:effective_date;not null" json:"effective_date"`
	DiscontinueDate        *time.Time `gorm:"column:discontinue_date" json:"discontinue_date,omitempty"`
	FirstTravelDate        *time.Time `gorm:"column:first_travel_date" json:"first_travel_date,omitempty"`
	LastTravelDate         *time.Time `gorm:"column:last_travel_date" json:"last_travel_date,omitempty"`
	HistoricSaleEffDate    *time.Time `gorm:"column:historic_sale_eff_date" json:"historic_sale_eff_date,omitempty"`
	HistoricSaleDiscDate   *time.Time `gorm:"column:historic_sale_disc_date" json:"historic_sale_disc_date,omitempty"`
	HistoricTravelEffDate  *time.Time `gorm:"column:historic_travel_eff_date" json:"historic_travel_eff_date,omitempty"`
	HistoricTravelDiscDate *time.Time `gorm:"column:historic_travel_disc_date" json:"historic_travel_disc_date,omitempty"`

	Loc1          Location      `gorm:"embedded;embeddedPrefix:loc1_" json:"loc1"`
	Loc1Appl      Appl          `gorm:"column:loc1_appl;type:text" json:"loc1_appl,omitempty"`
	Loc2          Location      `gorm:"embedded;embeddedPrefix:loc2_" json:"loc2"`
	Loc2Appl      Appl          `gorm:"column:loc2_appl;type:text" json:"loc2_appl,omitempty"`
	TripType      Geography     `gorm:"column:trip_type;type:text" json:"trip_type,omitempty"`
	TravelType    TravelType    `gorm:"column:travel_type;type:text" json:"travel_type,omitempty"`
	ItineraryType ItineraryType `gorm:"column:itinerary_type;type:text" json:"itinerary_type,omitempty"`

	Passengers       datatypes.JSONSlice[PassengerRestriction] `gorm:"column:passengers" json:"passengers,omitempty"`
	PassengerExclude bool                                      `gorm:"column:passenger_exclude" json:"passenger_exclude,omitempty"`

	ExemptCarriers   datatypes.JSONSlice[string] `gorm:"column:exempt_carriers" json:"exempt_carriers,omitempty"`
	ExemptEquipment  datatypes.JSONSlice[string] `gorm:"column:exempt_equipment" json:"exempt_equipment,omitempty"`
	FareClasses      datatypes.JSONSlice[string] `gorm:"column:fare_classes" json:"fare_classes,omitempty"`
	FareClassExclude bool                        `gorm:"column:fare_class_exclude" json:"fare_class_exclude,omitempty"`

	SellCurrency        string `gorm:"column:sell_currency;type:text" json:"sell_currency,omitempty"`
	SellCurrencyExclude bool   `gorm:"column:sell_currency_exclude" json:"sell_currency_exclude,omitempty"`
	FormOfPayment       string `gorm:"column:form_of_payment;type:text" json:"form_of_payment,omitempty"`

	FeeInd       bool `gorm:"column:fee_ind" json:"fee_ind,omitempty"`
	AncillaryFee bool `gorm:"column:ancillary_fee" json:"ancillary_fee,omitempty"`
	ShowSeparate bool `gorm:"column:show_separate" json:"show_separate,omitempty"`

	FullFareInd      bool `gorm:"column:full_fare_ind" json:"full_fare_ind,omitempty"`
	EquivAmountInd   bool `gorm:"column:equiv_amount_ind" json:"equiv_amount_ind,omitempty"`
	ExcessBaggageInd bool `gorm:"column:excess_baggage_ind" json:"excess_baggage_ind,omitempty"`

	TaxOnTaxCodes datatypes.JSONSlice[string] `gorm:"column:tax_on_tax_codes" json:"tax_on_tax_codes,omitempty"`
	TaxOnTaxExcl  bool                        `gorm:"column:tax_on_tax_excl" json:"tax_on_tax_excl,omitempty"`

	RoundUnit     decimal.NullDecimal `gorm:"column:round_unit;type:numeric(18,6)" json:"round_unit"`
	RoundRule     RoundRule           `gorm:"column:round_rule;type:text" json:"round_rule,omitempty"`
	MinTax        decimal.NullDecimal `gorm:"column:min_tax;type:numeric(18,6)" json:"min_tax"`
	MaxTax        decimal.NullDecimal `gorm:"column:max_tax;type:numeric(18,6)" json:"max_tax"`
	RangeCurrency string              `gorm:"column:range_currency;type:text" json:"range_currency,omitempty"`

	Transit *TransitRestriction `gorm:"column:transit;type:text;serializer:json" json:"transit,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (TaxRuleRecord) TableName() string { return "tax_rules" }

func (r *TaxRuleRecord) IsPercentage() bool {
	return r.TaxType == TaxTypePercentage
}

// HasTaxOnTax reports whether the rule is levied on other taxes.
func (r *TaxRuleRecord) HasTaxOnTax() bool {
	return len(r.TaxOnTaxCodes) > 0
}

// Validate checks the record for data inconsistencies. A failing rule is
// skipped by the evaluator without affecting other rules.
func (r *TaxRuleRecord) Validate() error {
	if code := strings.TrimSpace(r.Code); len(code) < 2 || len(code) > 3 {
		return ErrInvalidTaxCode
	}
	if len(strings.TrimSpace(r.Nation)) != 2 {
		return ErrInvalidNation
	}
	if r.TaxType != TaxTypePercentage && r.TaxType != TaxTypeFlat {
		return ErrInvalidTaxType
	}
	if r.TaxAmount.IsNegative() {
		return ErrInvalidTaxAmount
	}
	if r.TaxType == TaxTypeFlat && strings.TrimSpace(r.TaxCurrency) == "" {
		return ErrInvalidTaxCurrency
	}
	if r.EffectiveDate.IsZero() {
		return ErrInvalidDateRange
	}
	if r.DiscontinueDate != nil && r.DiscontinueDate.Before(r.EffectiveDate) {
		return ErrInvalidDateRange
	}
	if r.FirstTravelDate != nil && r.LastTravelDate != nil && r.LastTravelDate.Before(*r.FirstTravelDate) {
		return ErrInvalidDateRange
	}
	if r.MinTax.Valid && r.MaxTax.Valid && r.MaxTax.Decimal.LessThan(r.MinTax.Decimal) {
		return ErrInvalidRange
	}
	if (r.MinTax.Valid || r.MaxTax.Valid) && strings.TrimSpace(r.RangeCurrency) == "" && strings.TrimSpace(r.TaxCurrency) == "" {
		return ErrInvalidRange
	}
	if r.RoundUnit.Valid && !r.RoundUnit.Decimal.IsPositive() {
		return ErrInvalidRounding
	}
	switch r.RoundRule {
	case RoundDefault, RoundUp, RoundDown, RoundNearest:
	default:
		return ErrInvalidRounding
	}
	for _, loc := range []Location{r.Loc1, r.Loc2} {
		if !validLocType(loc.Type) {
			return ErrInvalidLocation
		}
	}
	switch r.FormOfPayment {
	case "", FormOfPaymentCash, FormOfPaymentCheck, FormOfPaymentCredit:
	default:
		return ErrInvalidFormOfPayment
	}
	for _, p := range r.Passengers {
		if p.MinAge < 0 || p.MaxAge < 0 || (p.MaxAge > 0 && p.MaxAge < p.MinAge) {
			return ErrInvalidPassenger
		}
	}
	return nil
}

func validLocType(t LocType) bool {
	switch t {
	case LocAny, LocNation, LocCity, LocState, LocZone:
		return true
	}
	return false
}
