package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PolicyType identifies the discount family that produced an AppliedPromotion
type PolicyType string

const (
	PolicyTypePercentOff   PolicyType = "PERCENT_OFF"
	PolicyTypeBuyNGetMFree PolicyType = "BUY_N_GET_M_FREE"
)

// RouteConditionGroup is satisfied when any of its route IDs matches
type RouteConditionGroup struct {
	RouteIDs []int64 `json:"route_ids"`
}

// DateConditionItem matches either a specific calendar date or an ISO
// weekday (1 = Monday .. 7 = Sunday). Either field may be nil.
type DateConditionItem struct {
	SpecificDate *time.Time `json:"specific_date,omitempty"`
	Weekday      *int       `json:"weekday,omitempty"`
}

// DateConditionGroup is satisfied when any of its items matches
type DateConditionGroup struct {
	Items []DateConditionItem `json:"items"`
}

// PercentOffPolicy discounts a percentage of the seat total, optionally capped
type PercentOffPolicy struct {
	Percent *int             `json:"percent,omitempty"`
	MaxOff  *decimal.Decimal `json:"max_off,omitempty"`
}

// BuyNGetMFreePolicy makes the M cheapest seats free when N+M are bought
type BuyNGetMFreePolicy struct {
	BuyN *int `json:"buy_n,omitempty"`
	GetM *int `json:"get_m,omitempty"`
}

// Promotion is the evaluation input as supplied by the promotion service
type Promotion struct {
	Code            string                `json:"code"`
	StartDate       *time.Time            `json:"start_date,omitempty"`
	EndDate         *time.Time            `json:"end_date,omitempty"`
	UsageLimit      *int                  `json:"usage_limit,omitempty"`
	UsedCount       *int                  `json:"used_count,omitempty"`
	RouteConditions []RouteConditionGroup `json:"route_conditions,omitempty"`
	DateConditions  []DateConditionGroup  `json:"date_conditions,omitempty"`
	PercentOffs     []PercentOffPolicy    `json:"percent_offs,omitempty"`
	BuyNGetMs       []BuyNGetMFreePolicy  `json:"buy_n_get_ms,omitempty"`
}

// AppliedPromotion is the evaluation result for one booking
type AppliedPromotion struct {
	PromotionCode  string           `json:"promotion_code"`
	PolicyType     PolicyType       `json:"policy_type"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	Percent        *int             `json:"percent,omitempty"`
	MaxOff         *decimal.Decimal `json:"max_off,omitempty"`
	FreeSeats      *int             `json:"free_seats,omitempty"`
}
