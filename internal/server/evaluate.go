package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	evaluationdomain "github.com/smallbiznis/airtax/internal/evaluation/domain"
	"github.com/smallbiznis/airtax/internal/itinerary"
)

type evaluateRequest struct {
	Itineraries  []*itinerary.Itinerary `json:"itineraries"`
	IncludeTrace bool                   `json:"include_trace"`
}

type evaluateResult struct {
	ItineraryIndex int                            `json:"itinerary_index"`
	Fare           []evaluationdomain.TaxLineItem `json:"fare"`
	Ancillary      []evaluationdomain.TaxLineItem `json:"ancillary"`
	Total          decimal.Decimal                `json:"total"`
	Incomplete     bool                           `json:"incomplete"`
	Failures       []evaluationdomain.Failure     `json:"failures,omitempty"`
	Trace          []evaluationdomain.TraceRecord `json:"trace,omitempty"`
}

func (s *Server) EvaluateTaxes(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	switch {
	case len(req.Itineraries) == 0:
		AbortWithError(c, newValidationError("itineraries", "required", "at least one itinerary is required"))
		return
	case s.cfg.MaxBatchItineraries > 0 && len(req.Itineraries) > s.cfg.MaxBatchItineraries:
		AbortWithError(c, newValidationError("itineraries", "too_many", "too many itineraries in one request"))
		return
	}
	for _, it := range req.Itineraries {
		if it == nil {
			AbortWithError(c, newValidationError("itineraries", "invalid_itinerary", "itinerary must not be null"))
			return
		}
	}
	c.Set(contextItineraryCountKey, len(req.Itineraries))

	sets := s.dispatcher.Dispatch(c.Request.Context(), req.Itineraries)

	results := make([]evaluateResult, 0, len(sets))
	for _, set := range sets {
		results = append(results, newEvaluateResult(set, req.IncludeTrace))
	}

	c.JSON(http.StatusOK, gin.H{"data": results})
}

func newEvaluateResult(set *evaluationdomain.ComputedTaxSet, includeTrace bool) evaluateResult {
	res := evaluateResult{
		ItineraryIndex: set.ItineraryIndex,
		Fare:           nonNilItems(set.Fare),
		Ancillary:      nonNilItems(set.Ancillary),
		Total:          set.Total(),
		Incomplete:     set.Incomplete,
		Failures:       set.Failures,
	}
	if includeTrace {
		res.Trace = set.Trace
	}
	return res
}

func nonNilItems(items []evaluationdomain.TaxLineItem) []evaluationdomain.TaxLineItem {
	if items == nil {
		return []evaluationdomain.TaxLineItem{}
	}
	return items
}
