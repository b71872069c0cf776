package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/apperror"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Details  string `json:"details,omitempty"`
}

// errorResponder turns service errors into HTTP responses
type errorResponder struct {
	logger *logrus.Logger
	// exposeDetails attaches the underlying cause of internal errors
	exposeDetails bool
}

func (r errorResponder) respondError(c *gin.Context, err error) {
	appErr, ok := apperror.As(err)
	if !ok || appErr.Kind == apperror.KindInternal {
		r.logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).WithError(err).Error("Request failed with internal error")

		resp := ErrorResponse{
			Error:   string(apperror.KindInternal),
			Message: "An unexpected error occurred",
		}
		if r.exposeDetails {
			resp.Details = err.Error()
		}
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	if appErr.Kind == apperror.KindPaymentProvider {
		r.logger.WithFields(logrus.Fields{
			"path":     c.Request.URL.Path,
			"category": appErr.Category,
			"code":     appErr.Code,
		}).WithError(appErr.Err).Warn("Payment provider error")
	}

	c.JSON(apperror.StatusOf(appErr), ErrorResponse{
		Error:    string(appErr.Kind),
		Message:  appErr.Message,
		Code:     appErr.Code,
		Category: appErr.Category,
	})
}

// bindError answers a request body that failed to decode
func (r errorResponder) bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   string(apperror.KindValidation),
		Message: "Invalid request body: " + err.Error(),
	})
}

// paramUUID parses a path parameter, answering 400 when it is not a UUID
func (r errorResponder) paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		r.respondError(c, apperror.Validation("invalid %s format", name))
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit and offset query parameters; zero means default
func (r errorResponder) pagination(c *gin.Context) (limit, offset int, ok bool) {
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			r.respondError(c, apperror.Validation("limit must be an integer"))
			return 0, 0, false
		}
		limit = v
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			r.respondError(c, apperror.Validation("offset must be an integer"))
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}
