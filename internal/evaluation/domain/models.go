// Package domain holds the per-itinerary result of a tax evaluation.
package domain

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TaxLineItem is one computed tax in payment currency.
type TaxLineItem struct {
	Code         string          `json:"code"`
	Nation       string          `json:"nation"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	SeqNo        int             `json:"seq_no"`
	RuleID       snowflake.ID    `json:"rule_id"`
	SegmentIndex int             `json:"segment_index"`
	Ancillary    bool            `json:"ancillary,omitempty"`
	ShowSeparate bool            `json:"show_separate,omitempty"`
	RolledUp     bool            `json:"rolled_up,omitempty"`
	SegmentFee   bool            `json:"segment_fee,omitempty"`
	CarrierFee   bool            `json:"carrier_fee,omitempty"`
}

// Failure records a rule the itinerary could not be taxed for.
type Failure struct {
	RuleID snowflake.ID `json:"rule_id"`
	Code   string       `json:"code"`
	Reason string       `json:"reason"`
}

// TraceRecord is the structured diagnostic of one rule evaluation.
type TraceRecord struct {
	RuleID       snowflake.ID    `json:"rule_id"`
	Code         string          `json:"code"`
	SeqNo        int             `json:"seq_no"`
	Behavior     string          `json:"behavior,omitempty"`
	Predicate    string          `json:"predicate,omitempty"`
	Passed       bool            `json:"passed"`
	Matched      []int           `json:"matched,omitempty"`
	StopoverMask uint64          `json:"stopover_mask"`
	Base         decimal.Decimal `json:"base"`
	Amount       decimal.Decimal `json:"amount"`
	Note         string          `json:"note,omitempty"`
}

// ComputedTaxSet accumulates the taxes of one itinerary. It is appended to
// while rules are folded and frozen afterwards; mutating a frozen set panics.
type ComputedTaxSet struct {
	ItineraryIndex int           `json:"itinerary_index"`
	Fare           []TaxLineItem `json:"fare"`
	Ancillary      []TaxLineItem `json:"ancillary"`
	Incomplete     bool          `json:"incomplete"`
	Failures       []Failure     `json:"failures,omitempty"`
	Trace          []TraceRecord `json:"trace,omitempty"`

	items  []TaxLineItem
	frozen bool
}

func NewComputedTaxSet(index int) *ComputedTaxSet {
	return &ComputedTaxSet{ItineraryIndex: index}
}

func (s *ComputedTaxSet) mustBeOpen() {
	if s.frozen {
		panic(ErrFrozen)
	}
}

func (s *ComputedTaxSet) Append(item TaxLineItem) {
	s.mustBeOpen()
	s.items = append(s.items, item)
}

// Has reports whether a tax code is already in the working set.
func (s *ComputedTaxSet) Has(code string) bool {
	for _, item := range s.items {
		if strings.EqualFold(item.Code, code) {
			return true
		}
	}
	return false
}

// Items returns a copy of the working items in append order.
func (s *ComputedTaxSet) Items() []TaxLineItem {
	return append([]TaxLineItem(nil), s.items...)
}

func (s *ComputedTaxSet) Fail(f Failure) {
	s.mustBeOpen()
	s.Incomplete = true
	s.Failures = append(s.Failures, f)
}

func (s *ComputedTaxSet) Record(r TraceRecord) {
	s.mustBeOpen()
	s.Trace = append(s.Trace, r)
}

// Freeze publishes the ordered buckets and closes the set.
func (s *ComputedTaxSet) Freeze(fare, ancillary []TaxLineItem) {
	s.mustBeOpen()
	s.Fare = fare
	s.Ancillary = ancillary
	s.frozen = true
}

func (s *ComputedTaxSet) Frozen() bool { return s.frozen }

// Total sums the fare bucket.
func (s *ComputedTaxSet) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Fare {
		total = total.Add(item.Amount)
	}
	return total
}
