package trigger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ivr-billing/internal/callprovider"
	"ivr-billing/internal/subscription"
	"ivr-billing/internal/usage"
	"ivr-billing/pkg/logger"
)

// callEndedEvent is the provider's call-ended notification payload.
type callEndedEvent struct {
	CallID            string     `json:"call_id" binding:"required"`
	PathwayID         string     `json:"pathway_id"`
	UserID            string     `json:"user_id" binding:"required"`
	Pool              string     `json:"pool"`
	Status            string     `json:"queue_status"`
	StartedAt         *time.Time `json:"started_at"`
	EndAt             *time.Time `json:"end_at"`
	CallLengthSeconds int        `json:"call_length"`
}

// WebhookHandler is the push trigger: the provider posts a call-ended event
// and the pipeline runs synchronously before the response.
type WebhookHandler struct {
	pipeline *Pipeline
}

func NewWebhookHandler(pipeline *Pipeline) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline}
}

// HandleCallEnded always acknowledges with 200 once the payload parses.
// Processing failures are our problem, not the provider's: the record stays
// uncharged and the poll task or safety net retries, so asking the provider
// to redeliver buys nothing.
func (h *WebhookHandler) HandleCallEnded(c *gin.Context) {
	var ev callEndedEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	status := callprovider.Status(ev.Status)
	if status == "" {
		status = callprovider.StatusComplete
	}
	obs := usage.Observation{
		CallID:            ev.CallID,
		PathwayID:         ev.PathwayID,
		UserID:            ev.UserID,
		Pool:              subscription.Pool(ev.Pool),
		Status:            status,
		StartedAt:         ev.StartedAt,
		EndAt:             ev.EndAt,
		CallLengthSeconds: ev.CallLengthSeconds,
	}

	ctx := c.Request.Context()
	outcome, err := h.pipeline.Process(ctx, obs)
	if err != nil {
		logger.From(ctx).Error("webhook processing failed; deferring to poll/safety net",
			"call_id", ev.CallID, "err", err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": string(outcome)})
}
