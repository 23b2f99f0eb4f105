package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ridehub/ms-booking/internal/middleware"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/sirupsen/logrus"
)

// CleanupRunner triggers and inspects the expiration reaper
type CleanupRunner interface {
	TriggerCleanup(ctx context.Context) (*models.CleanupReport, error)
	CleanupStatus(ctx context.Context) (*models.CleanupStatus, error)
}

// TransactionPoller reconciles a single transaction on demand
type TransactionPoller interface {
	PollTransaction(ctx context.Context, transactionID string) (bool, error)
}

// JobReporter reports scheduled job state
type JobReporter interface {
	GetJobStatus() map[string]interface{}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// PollTransactionResponse is returned by the manual poll endpoint
type PollTransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	Updated       bool   `json:"updated"`
}

// AdminSchedulerHandler exposes manual reconciliation controls to operators
type AdminSchedulerHandler struct {
	cleanup CleanupRunner
	poller  TransactionPoller
	jobs    JobReporter
	logger  *logrus.Logger
}

// NewAdminSchedulerHandler creates a new admin scheduler handler
func NewAdminSchedulerHandler(cleanup CleanupRunner, poller TransactionPoller, jobs JobReporter, logger *logrus.Logger) *AdminSchedulerHandler {
	return &AdminSchedulerHandler{
		cleanup: cleanup,
		poller:  poller,
		jobs:    jobs,
		logger:  logger,
	}
}

// TriggerCleanup handles POST /api/admin/cleanup
func (h *AdminSchedulerHandler) TriggerCleanup(c *gin.Context) {
	log := h.logger.WithField("operator", operatorSubject(c))
	log.Info("Manual cleanup requested")

	report, err := h.cleanup.TriggerCleanup(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Manual cleanup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "cleanup_failed",
			Message: "Failed to run booking cleanup",
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// CleanupStatus handles GET /api/admin/cleanup/status
func (h *AdminSchedulerHandler) CleanupStatus(c *gin.Context) {
	status, err := h.cleanup.CleanupStatus(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read cleanup status")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "status_unavailable",
			Message: "Failed to read cleanup status",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// PollTransaction handles POST /api/admin/payments/:transactionId/poll
func (h *AdminSchedulerHandler) PollTransaction(c *gin.Context) {
	transactionID := strings.TrimSpace(c.Param("transactionId"))
	if transactionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "transactionId is required",
		})
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"operator":       operatorSubject(c),
		"transaction_id": transactionID,
	})

	updated, err := h.poller.PollTransaction(c.Request.Context(), transactionID)
	if err != nil {
		log.WithError(err).Error("Manual poll failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "poll_failed",
			Message: "Failed to poll transaction",
		})
		return
	}

	log.WithField("updated", updated).Info("Manual poll completed")
	c.JSON(http.StatusOK, PollTransactionResponse{
		TransactionID: transactionID,
		Updated:       updated,
	})
}

// SchedulerJobs handles GET /api/admin/scheduler/jobs
func (h *AdminSchedulerHandler) SchedulerJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}

func operatorSubject(c *gin.Context) string {
	if operator, ok := middleware.GetOperatorContext(c); ok {
		return operator.Subject
	}
	return ""
}
