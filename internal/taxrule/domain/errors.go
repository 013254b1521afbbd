package domain

import "errors"

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrRuleNotFound         = errors.New("rule_not_found")
	ErrDuplicateRule        = errors.New("duplicate_rule")
	ErrInvalidTaxCode       = errors.New("invalid_tax_code")
	ErrInvalidNation        = errors.New("invalid_nation")
	ErrInvalidTaxType       = errors.New("invalid_tax_type")
	ErrInvalidTaxAmount     = errors.New("invalid_tax_amount")
	ErrInvalidTaxCurrency   = errors.New("invalid_tax_currency")
	ErrInvalidDateRange     = errors.New("invalid_date_range")
	ErrInvalidRange         = errors.New("invalid_min_max_range")
	ErrInvalidRounding      = errors.New("invalid_rounding")
	ErrInvalidLocation      = errors.New("invalid_location")
	ErrInvalidFormOfPayment = errors.New("invalid_form_of_payment")
	ErrInvalidPassenger     = errors.New("invalid_passenger_restriction")
)
