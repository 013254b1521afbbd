package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/airtax/internal/amount"
	"github.com/smallbiznis/airtax/internal/applicability"
	"github.com/smallbiznis/airtax/internal/behavior"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/currency"
	"github.com/smallbiznis/airtax/internal/evaluation/domain"
	"github.com/smallbiznis/airtax/internal/itinerary"
	obslogger "github.com/smallbiznis/airtax/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/airtax/internal/observability/metrics"
	"github.com/smallbiznis/airtax/internal/sequencer"
	taxruledomain "github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/internal/taxrule/snapshot"
	"github.com/smallbiznis/airtax/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Rule outcomes, as counted and traced.
const (
	outcomeApplied       = "applied"
	outcomeNotApplicable = "not_applicable"
	outcomeSuperseded    = "superseded"
	outcomeDeferred      = "deferred"
	outcomeFailed        = "failed"
)

type serviceParams struct {
	fx.In

	Log       *zap.Logger
	Snapshots *snapshot.Store
	Holder    *config.NationConfigHolder
	Registry  *behavior.Registry
	Engine    *amount.Engine
	Sequencer *sequencer.Sequencer

	Metrics        *telemetry.Metrics   `optional:"true"`
	OtelMetrics    *obsmetrics.Metrics  `optional:"true"`
	TracerProvider trace.TracerProvider `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	snapshots *snapshot.Store
	holder    *config.NationConfigHolder
	registry  *behavior.Registry
	engine    *amount.Engine
	seq       *sequencer.Sequencer
	validator *applicability.Validator
	metrics   *telemetry.Metrics
	otel      *obsmetrics.Metrics
	tracer    trace.Tracer
}

func NewService(p serviceParams) domain.Service {
	return newService(p)
}

func newService(p serviceParams) *Service {
	tp := p.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Service{
		log:       p.Log.Named("evaluation"),
		snapshots: p.Snapshots,
		holder:    p.Holder,
		registry:  p.Registry,
		engine:    p.Engine,
		seq:       p.Sequencer,
		validator: applicability.NewValidator(),
		metrics:   p.Metrics,
		otel:      p.OtelMetrics,
		tracer:    tp.Tracer("airtax/evaluation"),
	}
}

// fold carries the state of one itinerary's pass over the rules.
type fold struct {
	ctx  context.Context
	it   *itinerary.Itinerary
	cfg  config.TaxConfig
	set  *domain.ComputedTaxSet
	done map[string]struct{}

	// deferred holds, per code, the rules levied on other taxes in snapshot
	// order. codes keeps the order the codes were first deferred in.
	deferred map[string][]*taxruledomain.TaxRuleRecord
	codes    []string
}

func (s *Service) Evaluate(ctx context.Context, index int, it *itinerary.Itinerary) (*domain.ComputedTaxSet, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "evaluation.itinerary",
		trace.WithAttributes(attribute.Int("itinerary.index", index)),
	)
	defer span.End()

	set := domain.NewComputedTaxSet(index)
	log := obslogger.WithContext(ctx, s.log).With(zap.Int("itinerary_index", index))

	if it == nil {
		set.Fail(domain.Failure{Reason: domain.ReasonInvalid})
		set.Freeze(nil, nil)
		return set, domain.ErrInvalidItinerary
	}
	if err := it.Validate(); err != nil {
		set.Fail(domain.Failure{Reason: domain.ReasonInvalid})
		set.Freeze(nil, nil)
		span.SetStatus(codes.Error, "invalid itinerary")
		s.metrics.ObserveEvaluation(true, time.Since(start))
		return set, fmt.Errorf("%w: %w", domain.ErrInvalidItinerary, err)
	}

	snap := s.snapshots.Current()
	if snap == nil {
		set.Fail(domain.Failure{Reason: domain.ReasonAborted})
		set.Freeze(nil, nil)
		return set, domain.ErrNoSnapshot
	}

	visited := it.VisitedNations()
	rules := snap.RulesFor(visited)
	span.SetAttributes(attribute.Int("rules.candidates", len(rules)))

	f := &fold{
		ctx:      ctx,
		it:       it,
		cfg:      s.holder.Get(),
		set:      set,
		done:     make(map[string]struct{}),
		deferred: make(map[string][]*taxruledomain.TaxRuleRecord),
	}

	var err error
	for _, rule := range rules {
		if err = ctx.Err(); err != nil {
			break
		}
		s.evaluateRule(f, rule, true)
	}

	if err == nil {
		err = s.settleDeferred(f)
	}
	if err != nil {
		set.Fail(domain.Failure{Reason: domain.ReasonAborted})
	}

	s.finish(f, visited)

	if set.Incomplete {
		span.SetStatus(codes.Error, "incomplete")
	}
	span.SetAttributes(
		attribute.Int("taxes.fare", len(set.Fare)),
		attribute.Int("taxes.ancillary", len(set.Ancillary)),
		attribute.Bool("incomplete", set.Incomplete),
	)
	s.metrics.ObserveEvaluation(set.Incomplete, time.Since(start))
	log.Debug("itinerary evaluated",
		zap.Int("rules", len(rules)),
		zap.Int("fare_taxes", len(set.Fare)),
		zap.Int("ancillary_taxes", len(set.Ancillary)),
		zap.Bool("incomplete", set.Incomplete),
	)
	return set, err
}

func (s *Service) evaluateRule(f *fold, rule *taxruledomain.TaxRuleRecord, first bool) {
	code := strings.ToUpper(rule.Code)
	rec := domain.TraceRecord{RuleID: rule.ID, Code: rule.Code, SeqNo: rule.SeqNo}

	if _, ok := f.done[code]; ok {
		rec.Note = outcomeSuperseded
		f.set.Record(rec)
		s.metrics.RecordRuleOutcome(outcomeSuperseded)
		return
	}

	if first {
		if _, pending := f.deferred[code]; pending || rule.HasTaxOnTax() {
			if !pending {
				f.codes = append(f.codes, code)
			}
			f.deferred[code] = append(f.deferred[code], rule)
			rec.Note = outcomeDeferred
			f.set.Record(rec)
			s.metrics.RecordRuleOutcome(outcomeDeferred)
			return
		}
	}

	bundle := s.registry.Lookup(rule.SpecialProcessNo)
	rec.Behavior = bundle.Name
	params := behavior.Params{Rule: rule, Itinerary: f.it, Config: f.cfg}
	nation, _ := f.cfg.Nation(rule.Nation)

	res := s.validator.Validate(applicability.Request{
		Rule:      rule,
		Itinerary: f.it,
		Working:   f.set,
		Transit:   bundle.TransitOptions(params),
		Nation:    nation,
		Zones:     f.cfg,
		Overrides: bundle.Overrides(params),
	})
	rec.Matched = res.Matched
	rec.StopoverMask = res.Stopovers

	if !res.Applicable {
		rec.Predicate = string(res.Failed)
		if res.Err != nil {
			rec.Note = res.Err.Error()
		}
		s.metrics.RecordRuleOutcome(outcomeNotApplicable)
		f.set.Record(rec)
		return
	}

	in := amount.Input{
		Rule:      rule,
		Itinerary: f.it,
		Matched:   res.Matched,
		Prior:     priorItems(f.set),
		Nation:    nation,
	}
	bundle.Apply(params, &in)

	detail, err := s.engine.Compute(f.ctx, in)
	// The code is settled either way: a failed amount must not let a later
	// sequence of the same code stand in for it.
	f.done[code] = struct{}{}
	if err != nil {
		reason := domain.ReasonAmount
		if errors.Is(err, amount.ErrConversion) || errors.Is(err, currency.ErrRateNotFound) {
			reason = domain.ReasonConversion
			s.otel.RecordConversionFailure(f.ctx, f.it.PaymentCurrency)
		}
		f.set.Fail(domain.Failure{RuleID: rule.ID, Code: rule.Code, Reason: reason})
		rec.Passed = true
		rec.Note = reason
		f.set.Record(rec)
		s.metrics.RecordRuleOutcome(outcomeFailed)
		obslogger.WithContext(f.ctx, s.log).Warn("tax amount failed",
			zap.String("code", rule.Code),
			zap.Int("seq_no", rule.SeqNo),
			zap.String("rule_id", rule.ID.String()),
			zap.Error(err),
		)
		return
	}

	segment := 0
	if len(res.Matched) > 0 {
		segment = res.Matched[0]
	}
	f.set.Append(domain.TaxLineItem{
		Code:         rule.Code,
		Nation:       strings.ToUpper(rule.Nation),
		Amount:       detail.Amount,
		Currency:     detail.Currency,
		SeqNo:        rule.SeqNo,
		RuleID:       rule.ID,
		SegmentIndex: segment,
		Ancillary:    rule.AncillaryFee,
		ShowSeparate: rule.ShowSeparate,
	})
	rec.Passed = true
	rec.Base = detail.Base
	rec.Amount = detail.Amount
	if detail.Capped {
		rec.Note = "capped"
	}
	f.set.Record(rec)
	s.metrics.RecordRuleOutcome(outcomeApplied)
	s.otel.RecordTaxApplied(f.ctx, rule.Nation)
}

// settleDeferred evaluates the deferred codes once each. A code runs only
// after every deferred code it is levied on has run; codes caught in a cycle
// run in snapshot order. A base tax still missing then makes the rule not
// applicable.
func (s *Service) settleDeferred(f *fold) error {
	unsettled := make(map[string]struct{}, len(f.codes))
	for _, code := range f.codes {
		unsettled[code] = struct{}{}
	}

	waiting := func(code string) bool {
		for _, rule := range f.deferred[code] {
			for _, base := range rule.TaxOnTaxCodes {
				base = strings.ToUpper(strings.TrimSpace(base))
				if base == code {
					continue
				}
				if _, ok := unsettled[base]; ok {
					return true
				}
			}
		}
		return false
	}

	run := func(code string) error {
		if err := f.ctx.Err(); err != nil {
			return err
		}
		for _, rule := range f.deferred[code] {
			s.evaluateRule(f, rule, false)
		}
		delete(unsettled, code)
		return nil
	}

	remaining := f.codes
	for len(remaining) > 0 {
		var next []string
		for _, code := range remaining {
			if waiting(code) {
				next = append(next, code)
				continue
			}
			if err := run(code); err != nil {
				return err
			}
		}
		if len(next) == len(remaining) {
			for _, code := range next {
				if err := run(code); err != nil {
					return err
				}
			}
			return nil
		}
		remaining = next
	}
	return nil
}

// finish orders the items for display and freezes the set.
func (s *Service) finish(f *fold, visited []string) {
	origin := f.it.Origin().Nation
	agent := f.it.TicketingAgentNation
	if agent == "" {
		agent = f.it.PointOfSaleNation
	}
	driver := agent
	if driver == "" {
		driver = origin
	}
	table := sequencer.TableFor(f.cfg, driver)

	items := f.set.Items()
	for i := range items {
		items[i] = s.seq.Flag(items[i], table)
	}
	ordered := s.seq.Order(items, table, agent, origin, visited)
	fare, ancillary := s.seq.Bucket(ordered)
	fare = s.seq.Compress(fare, table.TicketBoxes)
	f.set.Freeze(fare, ancillary)
}

func priorItems(set *domain.ComputedTaxSet) []amount.Prior {
	items := set.Items()
	out := make([]amount.Prior, 0, len(items))
	for _, item := range items {
		out = append(out, amount.Prior{Code: item.Code, Amount: item.Amount})
	}
	return out
}
