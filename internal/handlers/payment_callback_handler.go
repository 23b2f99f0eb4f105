package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/internal/services"
	"github.com/ridehub/ms-booking/internal/utils"
	"github.com/ridehub/ms-booking/pkg/vnpay"
	"github.com/sirupsen/logrus"
)

// PaymentEventProcessor applies a payment status event
type PaymentEventProcessor interface {
	Process(ctx context.Context, event *models.PaymentStatusEvent) (string, error)
}

// PaymentCallbackHandler receives gateway payment notifications
type PaymentCallbackHandler struct {
	processor PaymentEventProcessor
	logger    *logrus.Logger
}

// NewPaymentCallbackHandler creates a new payment callback handler
func NewPaymentCallbackHandler(processor PaymentEventProcessor, logger *logrus.Logger) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{
		processor: processor,
		logger:    logger,
	}
}

// VNPayIPN handles GET /api/payments/vnpay/ipn
// VNPay retries until it gets HTTP 200, so outcomes are reported in RspCode.
func (h *PaymentCallbackHandler) VNPayIPN(c *gin.Context) {
	raw := c.Request.URL.RawQuery
	log := h.logger.WithField("ip", utils.GetRealIP(c))

	event, err := services.EventFromVNPayIPN(raw)
	if err != nil {
		log.WithError(err).Warn("Rejected malformed VNPay IPN")
		c.JSON(http.StatusOK, vnpay.IPNAck{RspCode: vnpay.AckUnknownError, Message: "Invalid request"})
		return
	}

	log = log.WithFields(logrus.Fields{
		"transaction_id": event.TransactionRef,
		"response_code":  event.ResponseCode,
	})

	result, err := h.processor.Process(c.Request.Context(), event)
	if err != nil {
		log.WithError(err).Error("Failed to process VNPay IPN")
		c.JSON(http.StatusOK, vnpay.IPNAck{RspCode: vnpay.AckUnknownError, Message: "Unknown error"})
		return
	}

	log.WithField("result", result).Info("VNPay IPN processed")
	c.JSON(http.StatusOK, ipnAck(result))
}

func ipnAck(result string) vnpay.IPNAck {
	switch result {
	case services.WebhookResultInvalidSignature:
		return vnpay.IPNAck{RspCode: vnpay.AckInvalidSignature, Message: "Invalid signature"}
	case services.WebhookResultTransactionNotFound:
		return vnpay.IPNAck{RspCode: vnpay.AckOrderNotFound, Message: "Order not found"}
	case services.WebhookResultAlreadyProcessed, services.WebhookResultAlreadyFinal:
		return vnpay.IPNAck{RspCode: vnpay.AckAlreadyConfirmed, Message: "Order already confirmed"}
	}
	if services.IsAppliedWebhookResult(result) {
		return vnpay.IPNAck{RspCode: vnpay.AckConfirmed, Message: "Confirm Success"}
	}
	return vnpay.IPNAck{RspCode: vnpay.AckUnknownError, Message: "Unknown error"}
}
