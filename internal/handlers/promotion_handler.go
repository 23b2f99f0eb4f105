package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PromotionEvaluator prices a promotion against a booking
type PromotionEvaluator interface {
	Evaluate(promo *models.Promotion, req services.PromotionRequest) (*models.AppliedPromotion, bool)
}

// EvaluatePromotionRequest is the body of POST /api/promotions/evaluate
type EvaluatePromotionRequest struct {
	Promotion     *models.Promotion `json:"promotion" binding:"required"`
	RouteID       int64             `json:"route_id"`
	TravelDate    *time.Time        `json:"travel_date,omitempty"`
	SeatCount     int               `json:"seat_count" binding:"min=1"`
	PerSeatPrices []decimal.Decimal `json:"per_seat_prices"`
}

// Validate checks the seat prices against the seat count
func (r *EvaluatePromotionRequest) Validate() error {
	if len(r.PerSeatPrices) != r.SeatCount {
		return fmt.Errorf("per_seat_prices has %d entries, expected %d", len(r.PerSeatPrices), r.SeatCount)
	}
	for _, p := range r.PerSeatPrices {
		if p.IsNegative() {
			return fmt.Errorf("per_seat_prices must not be negative")
		}
	}
	return nil
}

// EvaluatePromotionResponse carries the applied promotion, if any
type EvaluatePromotionResponse struct {
	Applied   bool                     `json:"applied"`
	Promotion *models.AppliedPromotion `json:"promotion,omitempty"`
}

// PromotionHandler exposes the promotion evaluator
type PromotionHandler struct {
	evaluator PromotionEvaluator
	logger    *logrus.Logger
}

// NewPromotionHandler creates a new promotion handler
func NewPromotionHandler(evaluator PromotionEvaluator, logger *logrus.Logger) *PromotionHandler {
	return &PromotionHandler{
		evaluator: evaluator,
		logger:    logger,
	}
}

// Evaluate handles POST /api/promotions/evaluate
func (h *PromotionHandler) Evaluate(c *gin.Context) {
	var req EvaluatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	applied, ok := h.evaluator.Evaluate(req.Promotion, services.PromotionRequest{
		RouteID:       req.RouteID,
		TravelDate:    req.TravelDate,
		SeatCount:     req.SeatCount,
		PerSeatPrices: req.PerSeatPrices,
	})

	h.logger.WithFields(logrus.Fields{
		"promotion_code": req.Promotion.Code,
		"route_id":       req.RouteID,
		"seat_count":     req.SeatCount,
		"applied":        ok,
		"caller":         operatorSubject(c),
	}).Debug("Promotion evaluated")

	if !ok {
		c.JSON(http.StatusOK, EvaluatePromotionResponse{Applied: false})
		return
	}
	c.JSON(http.StatusOK, EvaluatePromotionResponse{Applied: true, Promotion: applied})
}
