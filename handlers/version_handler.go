package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gameqc/lifecycle"
	"gameqc/logger"
	"gameqc/middleware"
	"gameqc/services"
)

type VersionHandler struct {
	versionService *services.VersionService
	log            *logger.Logger
}

func NewVersionHandler(versionService *services.VersionService, log *logger.Logger) *VersionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &VersionHandler{versionService: versionService, log: log.With("handler", "VersionHandler")}
}

func (h *VersionHandler) CreateGame(c *gin.Context) {
	var req services.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	game, err := h.versionService.CreateGame(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, game)
}

func (h *VersionHandler) ListGames(c *gin.Context) {
	games, err := h.versionService.ListGames(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, games)
}

func (h *VersionHandler) GetGame(c *gin.Context) {
	game, err := h.versionService.GetGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

func (h *VersionHandler) UploadVersion(c *gin.Context) {
	var req services.UploadVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	version, err := h.versionService.UploadVersion(c.Request.Context(), c.Param("id"), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, version)
}

func (h *VersionHandler) ListVersions(c *gin.Context) {
	versions, err := h.versionService.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, versions)
}

// GetVersion also reports the actions legal from the current status.
func (h *VersionHandler) GetVersion(c *gin.Context) {
	version, err := h.versionService.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"version":         version,
		"allowed_actions": lifecycle.AllowedActions(lifecycle.Status(version.Status)),
	})
}

func (h *VersionHandler) Reupload(c *gin.Context) {
	var req services.ReuploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.versionService.Reupload(c.Request.Context(), c.Param("id"), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}
