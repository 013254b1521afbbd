package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type serviceParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p serviceParams) domain.Service {
	return &Service{
		log:   p.Log.Named("taxrule.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, rule domain.TaxRuleRecord) (*domain.TaxRuleRecord, error) {
	normalize(&rule)

	now := time.Now().UTC()
	rule.ID = s.genID.Generate()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &rule); err != nil {
		return nil, err
	}
	s.log.Info("tax rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("code", rule.Code),
		zap.Int("seq_no", rule.SeqNo),
	)
	return &rule, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.TaxRuleRecord, error) {
	ruleID, err := domain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	rule, err := s.repo.FindByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, domain.ErrRuleNotFound
	}
	return rule, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()

	filter := domain.ListFilter{
		Nation: strings.TrimSpace(req.Nation),
		Code:   strings.TrimSpace(req.Code),
		Limit:  limit + 1,
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidID
		}
		afterID, err := domain.ParseID(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, err
		}
		filter.AfterID = afterID
	}

	rules, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	rules, info, err := pagination.BuildCursorPageInfo(rules, limit, func(r domain.TaxRuleRecord) string {
		return r.ID.String()
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	if rules == nil {
		rules = []domain.TaxRuleRecord{}
	}

	return domain.ListResponse{
		Rules:         rules,
		NextPageToken: info.NextPageToken,
		HasMore:       info.HasMore,
	}, nil
}

func normalize(rule *domain.TaxRuleRecord) {
	rule.Code = strings.ToUpper(strings.TrimSpace(rule.Code))
	rule.Nation = strings.ToUpper(strings.TrimSpace(rule.Nation))
	rule.TaxCurrency = strings.ToUpper(strings.TrimSpace(rule.TaxCurrency))
	rule.RangeCurrency = strings.ToUpper(strings.TrimSpace(rule.RangeCurrency))
	rule.SellCurrency = strings.ToUpper(strings.TrimSpace(rule.SellCurrency))
	rule.FormOfPayment = strings.ToUpper(strings.TrimSpace(rule.FormOfPayment))
	rule.Loc1.Code = strings.ToUpper(strings.TrimSpace(rule.Loc1.Code))
	rule.Loc2.Code = strings.ToUpper(strings.TrimSpace(rule.Loc2.Code))
	rule.EffectiveDate = rule.EffectiveDate.UTC()
}
