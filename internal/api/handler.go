// Package api is the read surface for downstream consumers: current state
// lookups, alert listing, operator snooze and acknowledge, and the live
// alert feed.
package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pricewatch/internal/alerting"
	"pricewatch/internal/logger"
	"pricewatch/internal/state"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

type Handler struct {
	states state.Store
	alerts *alerting.Manager
	feed   *Hub
	logger logger.Logger
}

// NewHandler builds the handler. feed may be nil, which disables the
// websocket route.
func NewHandler(states state.Store, alerts *alerting.Manager, feed *Hub, log logger.Logger) *Handler {
	return &Handler{
		states: states,
		alerts: alerts,
		feed:   feed,
		logger: log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/states/:subjectKey", h.GetState)

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.ListAlerts)
			if h.feed != nil {
				alerts.GET("/feed", h.feed.Serve)
			}
			alerts.GET("/:fingerprint", h.GetAlert)
			alerts.POST("/:fingerprint/snooze", h.SnoozeAlert)
			alerts.POST("/:fingerprint/ack", h.AcknowledgeAlert)
		}
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := apperrors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, apperrors.ToErrorResponse(err))
}

// GetState returns the CurrentState of one subject.
func (h *Handler) GetState(c *gin.Context) {
	st, err := h.states.Get(c.Request.Context(), c.Param("subjectKey"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListAlerts filters by subject_key, severity and status, newest first.
func (h *Handler) ListAlerts(c *gin.Context) {
	filter := alerting.ListFilter{SubjectKey: c.Query("subject_key")}

	if s := c.Query("severity"); s != "" {
		sev, err := models.ParseSeverity(s)
		if err != nil {
			h.HandleError(c, apperrors.ErrValidation.WithCause(err))
			return
		}
		filter.Severity = sev
	}

	if s := c.Query("status"); s != "" {
		status := models.AlertStatus(s)
		if !status.Active() && status != models.AlertStatusResolved {
			h.HandleError(c, apperrors.ErrValidation.WithDetail("message", "unknown status: "+s))
			return
		}
		filter.Status = status
	}

	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			h.HandleError(c, apperrors.ErrValidation.WithDetail("message", "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	recs, err := h.alerts.Store().List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// GetAlert returns the newest record for a fingerprint, active or not.
func (h *Handler) GetAlert(c *gin.Context) {
	fp, ok := h.fingerprint(c)
	if !ok {
		return
	}

	recs, err := h.alerts.Store().List(c.Request.Context(), alerting.ListFilter{
		SubjectKey: fp.SubjectKey,
		Severity:   fp.Severity,
		Limit:      1,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if len(recs) == 0 {
		h.HandleError(c, apperrors.ErrNotFound.WithDetail("fingerprint", fp.String()))
		return
	}
	c.JSON(http.StatusOK, recs[0])
}

type SnoozeRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

func (h *Handler) SnoozeAlert(c *gin.Context) {
	fp, ok := h.fingerprint(c)
	if !ok {
		return
	}

	var req SnoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, apperrors.ErrValidation.WithCause(err))
		return
	}

	rec, err := h.alerts.Snooze(c.Request.Context(), fp, req.Until)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	fp, ok := h.fingerprint(c)
	if !ok {
		return
	}

	rec, err := h.alerts.Acknowledge(c.Request.Context(), fp)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) fingerprint(c *gin.Context) (models.Fingerprint, bool) {
	raw, err := url.PathUnescape(c.Param("fingerprint"))
	if err != nil {
		h.HandleError(c, apperrors.ErrValidation.WithCause(err))
		return models.Fingerprint{}, false
	}
	fp, err := models.ParseFingerprint(raw)
	if err != nil {
		h.HandleError(c, apperrors.ErrValidation.WithCause(err))
		return models.Fingerprint{}, false
	}
	return fp, true
}
