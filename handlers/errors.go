package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gameqc/decision"
	"gameqc/ledger"
	"gameqc/lifecycle"
	"gameqc/logger"
	"gameqc/services"
	"gameqc/store"
)

// respondError writes the JSON error body for err. Unknown errors are logged
// and reported as 500 without their text.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	var (
		invalid    *lifecycle.InvalidTransitionError
		denied     *lifecycle.PermissionDeniedError
		missing    *lifecycle.EvidenceMissingError
		inconsist  *decision.InconsistentDecisionError
		statusCode int
		body       = gin.H{"error": err.Error()}
	)

	switch {
	case errors.As(err, &invalid):
		statusCode = http.StatusConflict
		body["code"] = "invalid_transition"
		body["current"] = invalid.Current
		body["attempted"] = invalid.Attempted
		body["allowed"] = invalid.Allowed
	case errors.As(err, &inconsist):
		statusCode = http.StatusBadRequest
		body["code"] = "inconsistent_decision"
		body["check"] = inconsist.Check
	case errors.As(err, &missing):
		statusCode = http.StatusPreconditionFailed
		body["code"] = "evidence_missing"
	case errors.As(err, &denied):
		statusCode = http.StatusForbidden
		body["code"] = "forbidden"
		body["permission"] = denied.Permission
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrUnknownRole):
		statusCode = http.StatusBadRequest
		body["code"] = "invalid_input"
	case errors.Is(err, lifecycle.ErrVersionNotFound),
		errors.Is(err, services.ErrGameNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, store.ErrNoEvidence):
		statusCode = http.StatusNotFound
		body["code"] = "not_found"
	case errors.Is(err, store.ErrRunInProgress),
		errors.Is(err, services.ErrQANotAllowed),
		errors.Is(err, services.ErrGameExists),
		errors.Is(err, services.ErrVersionExists),
		errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, ledger.ErrAttemptConflict):
		statusCode = http.StatusConflict
		body["code"] = "conflict"
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		statusCode = http.StatusUnauthorized
		body["code"] = "unauthorized"
	default:
		log.Error("request failed", "path", c.FullPath(), "error", err)
		statusCode = http.StatusInternalServerError
		body = gin.H{"error": "internal server error", "code": "internal"}
	}
	c.JSON(statusCode, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_input"})
}
