package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gameqc/logger"
	"gameqc/middleware"
	"gameqc/services"
)

type QAHandler struct {
	qaService *services.QAService
	log       *logger.Logger
}

func NewQAHandler(qaService *services.QAService, log *logger.Logger) *QAHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &QAHandler{qaService: qaService, log: log.With("handler", "QAHandler")}
}

// RunQA starts an automated run. With ?wait=true the response carries the
// results, otherwise 202 and the run handle.
func (h *QAHandler) RunQA(c *gin.Context) {
	versionID := c.Param("id")
	actorID := middleware.UserID(c)

	if c.Query("wait") == "true" {
		results, err := h.qaService.Run(c.Request.Context(), versionID, actorID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"passed": results.Passed(), "results": results})
		return
	}

	run, err := h.qaService.StartRun(c.Request.Context(), versionID, actorID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusAccepted, run)
}

func (h *QAHandler) GetEvidence(c *gin.Context) {
	results, err := h.qaService.Evidence(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"passed": results.Passed(), "results": results})
}

func (h *QAHandler) ListRecords(c *gin.Context) {
	records, err := h.qaService.PlayRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// SubmitPlayResult is called by games. Re-posting an attempt is accepted.
func (h *QAHandler) SubmitPlayResult(c *gin.Context) {
	var req services.PlayResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	normalized, err := h.qaService.RecordPlayResult(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": true, "normalized": normalized})
}
