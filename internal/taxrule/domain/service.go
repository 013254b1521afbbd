package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, rule TaxRuleRecord) (*TaxRuleRecord, error)
	Get(ctx context.Context, id string) (*TaxRuleRecord, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type ListRequest struct {
	Nation    string `form:"nation"`
	Code      string `form:"code"`
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type ListResponse struct {
	Rules         []TaxRuleRecord `json:"rules"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	HasMore       bool            `json:"has_more"`
}

// ParseID parses the decimal string form of a rule id.
func ParseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}
