package domain

import (
	"context"

	"github.com/smallbiznis/airtax/internal/itinerary"
)

// Service taxes one itinerary against the current rule snapshot. The
// returned set is frozen. A non-nil error comes with an incomplete set.
type Service interface {
	Evaluate(ctx context.Context, index int, it *itinerary.Itinerary) (*ComputedTaxSet, error)
}
