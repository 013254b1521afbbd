package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Reader is the read contract the engine consumes. Implementations must be
// safe for concurrent use.
type Reader interface {
	ListAll(ctx context.Context) ([]TaxRuleRecord, error)
}

type Repository interface {
	Reader
	FindByID(ctx context.Context, id snowflake.ID) (*TaxRuleRecord, error)
	List(ctx context.Context, filter ListFilter) ([]TaxRuleRecord, error)
	Create(ctx context.Context, rule *TaxRuleRecord) error
}

type ListFilter struct {
	Nation  string
	Code    string
	AfterID snowflake.ID
	Limit   int
}
