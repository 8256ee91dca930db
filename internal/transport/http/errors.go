package http

import (
	"errors"
	"log"
	"net/http"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/domain"
	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTestType),
		errors.Is(err, domain.ErrInvalidYear),
		errors.Is(err, domain.ErrAnswerLength):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGuestMode):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAvatarNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrNoQuestions):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBonusAlreadyClaimed),
		errors.Is(err, domain.ErrInsufficientCoins),
		errors.Is(err, domain.ErrAvatarUnlocked),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrBuzzerLocked),
		errors.Is(err, domain.ErrNotLockHolder),
		errors.Is(err, domain.ErrLockedOut),
		errors.Is(err, domain.ErrNoActiveQuestion):
		return http.StatusConflict
	case errors.Is(err, app.ErrNoRemoteHistory):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(status, gin.H{"field": verr.Field, "error": verr.Err.Error()})
		return
	}
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
