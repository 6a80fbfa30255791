package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gameqc/logger"
	"gameqc/middleware"
	"gameqc/services"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
	log           *logger.Logger
}

func NewReviewHandler(reviewService *services.ReviewService, log *logger.Logger) *ReviewHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ReviewHandler{reviewService: reviewService, log: log.With("handler", "ReviewHandler")}
}

func (h *ReviewHandler) Transition(c *gin.Context) {
	var req services.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.reviewService.Transition(c.Request.Context(), c.Param("id"), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *ReviewHandler) Decide(c *gin.Context) {
	var req services.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.reviewService.Decide(c.Request.Context(), c.Param("id"), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// Validate dry-runs a decision against the stored evidence.
func (h *ReviewHandler) Validate(c *gin.Context) {
	var req services.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	verdict, err := h.reviewService.Preview(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, verdict)
}

func (h *ReviewHandler) History(c *gin.Context) {
	reports, err := h.reviewService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, reports)
}

func (h *ReviewHandler) Attempts(c *gin.Context) {
	summary, err := h.reviewService.Attempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *ReviewHandler) AuditTrail(c *gin.Context) {
	entries, err := h.reviewService.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}
