package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) domain.Repository {
	return &repository{db: conn}
}

func (r *repository) ListAll(ctx context.Context) ([]domain.TaxRuleRecord, error) {
	var rules []domain.TaxRuleRecord
	err := r.db.WithContext(ctx).
		Order("nation ASC").
		Order("code ASC").
		Order("seq_no ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.TaxRuleRecord, error) {
	var rule domain.TaxRuleRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]domain.TaxRuleRecord, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.TaxRuleRecord{})
	if filter.Nation != "" {
		stmt = stmt.Where("nation = ?", strings.ToUpper(filter.Nation))
	}
	if filter.Code != "" {
		stmt = stmt.Where("code = ?", strings.ToUpper(filter.Code))
	}
	if filter.AfterID > 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var rules []domain.TaxRuleRecord
	if err := stmt.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) Create(ctx context.Context, rule *domain.TaxRuleRecord) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateRule
		}
		return err
	}
	return nil
}
