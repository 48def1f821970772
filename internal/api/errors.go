package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"listings/internal/feed"
	"listings/internal/store"
	"listings/internal/upload"
)

// respondError переводит ошибку в JSON-ответ {error, message[, fields]}
func respondError(c *gin.Context, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid listing fields",
			"fields":  verr.Fields,
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "not found"})
	case errors.Is(err, upload.ErrTooLarge), errors.Is(err, upload.ErrTooManyFiles):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large", "message": err.Error()})
	case errors.Is(err, upload.ErrMalformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "malformed request body"})
	case errors.Is(err, feed.ErrUpstream):
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "message": "feed is unavailable"})
	default:
		// детали наружу не отдаём
		log.Printf("ERROR %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		sentry.CaptureException(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
	}
}

func notFound(c *gin.Context) {
	respondError(c, store.ErrNotFound)
}
