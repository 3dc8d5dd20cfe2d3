package api

import (
	"errors"
	"net/http"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotReady):
		return http.StatusServiceUnavailable, "Identity not ready"
	case errors.Is(err, models.ErrEmptyCart):
		return http.StatusBadRequest, "Cart is empty"
	case errors.Is(err, models.ErrCheckoutInProgress):
		return http.StatusConflict, "Checkout already in progress"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, models.ErrWriteFailed):
		return http.StatusBadGateway, "Order store rejected the write"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func writeError(c *gin.Context, err error) {
	code, message := statusFor(err)
	c.JSON(code, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
