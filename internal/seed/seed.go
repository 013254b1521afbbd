package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"gorm.io/gorm"
)

// EnsureSampleRules inserts a small US/CA/GB rule set when the table is empty.
func EnsureSampleRules(db *gorm.DB, node *snowflake.Node) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	ctx := context.Background()
	inserted := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.TaxRuleRecord{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, rule := range SampleRules() {
			rule.ID = node.Generate()
			rule.CreatedAt = now
			rule.UpdatedAt = now
			if err := rule.Validate(); err != nil {
				return err
			}
			if err := tx.Create(&rule).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	return inserted, err
}

// SampleRules returns the seed definitions without identifiers.
func SampleRules() []domain.TaxRuleRecord {
	effective := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	us := domain.Location{Type: domain.LocNation, Code: "US"}
	ca := domain.Location{Type: domain.LocNation, Code: "CA"}
	gb := domain.Location{Type: domain.LocNation, Code: "GB"}

	return []domain.TaxRuleRecord{
		{
			Code: "US1", Nation: "US", SeqNo: 100,
			TaxType: domain.TaxTypePercentage, TaxAmount: decimal.RequireFromString("7.5"),
			EffectiveDate: effective,
			Loc1:          us, Loc2: us, TripType: domain.GeographyWithin,
			TravelType: domain.TravelDomestic,
		},
		{
			Code: "US2", Nation: "US", SeqNo: 100, SpecialProcessNo: 21, SpecConfigName: "US2",
			TaxType: domain.TaxTypeFlat, TaxAmount: decimal.RequireFromString("16.10"), TaxCurrency: "USD",
			EffectiveDate: effective,
			Loc1:          us, TripType: domain.GeographyIncludes,
			TravelType: domain.TravelInternational,
			RoundUnit:  decimal.NewNullDecimal(decimal.RequireFromString("0.01")), RoundRule: domain.RoundNearest,
		},
		{
			Code: "AY", Nation: "US", SeqNo: 100,
			TaxType: domain.TaxTypeFlat, TaxAmount: decimal.RequireFromString("5.60"), TaxCurrency: "USD",
			PerSegment:    true,
			EffectiveDate: effective,
			Loc1:          us, Loc1Appl: domain.ApplOrigin, TripType: domain.GeographyIncludes,
			MaxTax: decimal.NewNullDecimal(decimal.RequireFromString("11.20")), RangeCurrency: "USD",
			Transit: &domain.TransitRestriction{Hours: 4, Minutes: -1, DomDom: true, DomIntl: true, IntlDom: true, IntlIntl: true},
		},
		{
			Code: "XF", Nation: "US", SeqNo: 100,
			TaxType: domain.TaxTypeFlat, TaxAmount: decimal.RequireFromString("4.50"), TaxCurrency: "USD",
			PerSegment:    true,
			FeeInd:        true,
			EffectiveDate: effective,
			Loc1:          us, TripType: domain.GeographyIncludes,
			MaxTax: decimal.NewNullDecimal(decimal.RequireFromString("18.00")), RangeCurrency: "USD",
			Transit: &domain.TransitRestriction{Hours: 4, Minutes: -1, DomDom: true, DomIntl: true, IntlDom: true},
		},
		{
			Code: "ZP", Nation: "US", SeqNo: 100,
			TaxType: domain.TaxTypeFlat, TaxAmount: decimal.RequireFromString("5.00"), TaxCurrency: "USD",
			PerSegment:    true,
			EffectiveDate: effective,
			Loc1:          us, Loc2: us, TripType: domain.GeographyWithin,
			TravelType: domain.TravelDomestic,
		},
		{
			Code: "CA1", Nation: "CA", SeqNo: 100,
			TaxType: domain.TaxTypeFlat, TaxAmount: decimal.RequireFromString("25.91"), TaxCurrency: "CAD",
			EffectiveDate: effective,
			Loc1:          ca, Loc1Appl: domain.ApplOrigin, TripType: domain.GeographyIncludes,
			Transit: &domain.TransitRestriction{Hours: 4, Minutes: -1, DomDom: true, DomIntl: true, IntlDom: true, IntlIntl: true},
		},
		{
			Code: "GB", Nation: "GB", SeqNo: 100, SpecialProcessNo: 44,
			TaxType: domain.TaxTypeFlat, TaxAmount: decimal.RequireFromString("13"), TaxCurrency: "GBP",
			EffectiveDate: effective,
			Loc1:          gb, Loc1Appl: domain.ApplOrigin, TripType: domain.GeographyIncludes,
			Transit: &domain.TransitRestriction{Hours: 24, Minutes: -1, DomDom: true, DomIntl: true, IntlIntl: true},
		},
		{
			Code: "YQ", Nation: "US", SeqNo: 100,
			TaxType: domain.TaxTypeFlat, TaxAmount: decimal.RequireFromString("20"), TaxCurrency: "USD",
			EffectiveDate: effective,
			Loc1:          us, TripType: domain.GeographyIncludes,
		},
	}
}
