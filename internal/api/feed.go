package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// FeedSource: закэшированный ответ внешнего webhook
type FeedSource interface {
	Get(ctx context.Context) ([]byte, error)
}

// FeedHandler: GET /api/feed
type FeedHandler struct {
	Feed FeedSource
}

func (h *FeedHandler) Get(c *gin.Context) {
	body, err := h.Feed.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
