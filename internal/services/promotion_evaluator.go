package services

import (
	"sort"
	"time"

	"github.com/ridehub/ms-booking/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PromotionRequest describes the booking being priced
type PromotionRequest struct {
	RouteID       int64
	TravelDate    *time.Time // nil means today
	SeatCount     int
	PerSeatPrices []decimal.Decimal
}

// policyEvaluator computes one discount family. It returns nil when the
// promotion has no applicable policy of that family.
type policyEvaluator func(promo *models.Promotion, req PromotionRequest) *models.AppliedPromotion

// PromotionEvaluator decides whether a promotion applies to a booking and
// how much it takes off. It is pure; the same input always gives the same
// result.
type PromotionEvaluator struct {
	policies []policyEvaluator
	now      func() time.Time
}

// NewPromotionEvaluator creates an evaluator. Percent-off is tried before
// buy-N-get-M.
func NewPromotionEvaluator() *PromotionEvaluator {
	return &PromotionEvaluator{
		policies: []policyEvaluator{evaluatePercentOff, evaluateBuyNGetM},
		now:      time.Now,
	}
}

// Evaluate returns the first policy with a positive discount, or false when
// the promotion does not apply.
func (e *PromotionEvaluator) Evaluate(promo *models.Promotion, req PromotionRequest) (*models.AppliedPromotion, bool) {
	if promo == nil {
		return nil, false
	}

	travelDate := dateOnly(e.now())
	if req.TravelDate != nil {
		travelDate = dateOnly(*req.TravelDate)
	}

	if !withinWindow(promo, travelDate) {
		return nil, false
	}
	if promo.UsageLimit != nil && promo.UsedCount != nil && *promo.UsedCount >= *promo.UsageLimit {
		return nil, false
	}
	if !matchesRoute(promo.RouteConditions, req.RouteID) {
		return nil, false
	}
	if !matchesDate(promo.DateConditions, travelDate) {
		return nil, false
	}

	for _, evaluate := range e.policies {
		applied := evaluate(promo, req)
		if applied != nil && applied.DiscountAmount.IsPositive() {
			return applied, true
		}
	}
	return nil, false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// withinWindow checks start <= date <= end, both ends optional
func withinWindow(promo *models.Promotion, date time.Time) bool {
	if promo.StartDate != nil && date.Before(dateOnly(*promo.StartDate)) {
		return false
	}
	if promo.EndDate != nil && date.After(dateOnly(*promo.EndDate)) {
		return false
	}
	return true
}

// matchesRoute passes when there are no route conditions, or when any
// route in any group equals routeID.
func matchesRoute(groups []models.RouteConditionGroup, routeID int64) bool {
	if len(groups) == 0 {
		return true
	}
	for _, group := range groups {
		for _, id := range group.RouteIDs {
			if id == routeID {
				return true
			}
		}
	}
	return false
}

// matchesDate passes when there are no date conditions, or when any item
// matches the date exactly or by ISO weekday.
func matchesDate(groups []models.DateConditionGroup, date time.Time) bool {
	if len(groups) == 0 {
		return true
	}
	weekday := isoWeekday(date)
	for _, group := range groups {
		for _, item := range group.Items {
			if item.SpecificDate != nil && dateOnly(*item.SpecificDate).Equal(date) {
				return true
			}
			if item.Weekday != nil && *item.Weekday == weekday {
				return true
			}
		}
	}
	return false
}

// isoWeekday returns 1 for Monday through 7 for Sunday
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func sumPrices(prices []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, p := range prices {
		total = total.Add(p)
	}
	return total
}

// evaluatePercentOff applies the largest positive percent, capped by its max_off
func evaluatePercentOff(promo *models.Promotion, req PromotionRequest) *models.AppliedPromotion {
	var best *models.PercentOffPolicy
	for i := range promo.PercentOffs {
		policy := &promo.PercentOffs[i]
		if policy.Percent == nil || *policy.Percent <= 0 {
			continue
		}
		if best == nil || *policy.Percent > *best.Percent {
			best = policy
		}
	}
	if best == nil {
		return nil
	}

	discount := sumPrices(req.PerSeatPrices).Mul(decimal.NewFromInt(int64(*best.Percent))).Div(hundred)
	if best.MaxOff != nil && discount.GreaterThan(*best.MaxOff) {
		discount = *best.MaxOff
	}

	percent := *best.Percent
	return &models.AppliedPromotion{
		PromotionCode:  promo.Code,
		PolicyType:     models.PolicyTypePercentOff,
		DiscountAmount: discount,
		Percent:        &percent,
		MaxOff:         best.MaxOff,
	}
}

// evaluateBuyNGetM makes the get_m cheapest seats free for the policy with
// the largest get_m
func evaluateBuyNGetM(promo *models.Promotion, req PromotionRequest) *models.AppliedPromotion {
	var best *models.BuyNGetMFreePolicy
	for i := range promo.BuyNGetMs {
		policy := &promo.BuyNGetMs[i]
		if policy.BuyN == nil || policy.GetM == nil || *policy.BuyN < 0 || *policy.GetM <= 0 {
			continue
		}
		if best == nil || *policy.GetM > *best.GetM {
			best = policy
		}
	}
	if best == nil {
		return nil
	}

	buyN, getM := *best.BuyN, *best.GetM
	if req.SeatCount < buyN+getM {
		return nil
	}

	prices := make([]decimal.Decimal, len(req.PerSeatPrices))
	copy(prices, req.PerSeatPrices)
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	free := getM
	if free > len(prices) {
		free = len(prices)
	}
	discount := sumPrices(prices[:free])

	return &models.AppliedPromotion{
		PromotionCode:  promo.Code,
		PolicyType:     models.PolicyTypeBuyNGetMFree,
		DiscountAmount: discount,
		FreeSeats:      &free,
	}
}
