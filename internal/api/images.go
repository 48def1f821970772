package api

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ImageHandler: /api/images/:id
type ImageHandler struct {
	Store ListingStore
}

// GET /api/images/:id: публичный, отдаёт байты с сохранённым content-type
func (h *ImageHandler) Get(c *gin.Context) {
	img, err := h.Store.GetImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	// содержимое не проверяется: inline только для растровых image/*, остальное скачиванием
	disposition := "attachment"
	if inlineSafe(img.MimeType) {
		disposition = "inline"
	}
	params := map[string]string{}
	if img.Filename != "" {
		params["filename"] = img.Filename
	}
	if cd := mime.FormatMediaType(disposition, params); cd != "" {
		c.Header("Content-Disposition", cd)
	} else {
		c.Header("Content-Disposition", disposition)
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, img.MimeType, img.Data)
}

// DELETE /api/images/:id
func (h *ImageHandler) Delete(c *gin.Context) {
	if err := h.Store.DeleteImage(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// svg тоже image/*, но может нести скрипт
func inlineSafe(mimeType string) bool {
	mt, _, _ := mime.ParseMediaType(mimeType)
	return strings.HasPrefix(mt, "image/") && mt != "image/svg+xml"
}
