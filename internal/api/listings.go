package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"listings/internal/models"
	"listings/internal/store"
	"listings/internal/upload"
)

// ListingStore: то, что хендлерам нужно от хранилища
type ListingStore interface {
	List(ctx context.Context, f store.Filter) ([]models.Listing, error)
	Get(ctx context.Context, id uint) (*models.Listing, error)
	Create(ctx context.Context, fields store.ListingFields, images []store.NewImage) (*models.Listing, error)
	Update(ctx context.Context, id uint, fields store.ListingFields, images []store.NewImage, removeImageIDs []string) (*models.Listing, error)
	Delete(ctx context.Context, id uint) error
	GetImage(ctx context.Context, id string) (*models.Image, error)
	DeleteImage(ctx context.Context, id string) error
}

// ListingHandler: /api/listings
type ListingHandler struct {
	Store  ListingStore
	Limits upload.Limits
}

// GET /api/listings?q=&city=&type=&rooms=&min_area=&max_area=&min_price=&max_price=
func (h *ListingHandler) List(c *gin.Context) {
	filter, err := filterFromQuery(c.Request.URL.Query())
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.Store.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// GET /api/listings/:id
func (h *ListingHandler) Get(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		notFound(c)
		return
	}
	l, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// POST /api/listings (multipart: поля + images)
func (h *ListingHandler) Create(c *gin.Context) {
	form, err := upload.Read(c.Writer, c.Request, h.Limits)
	if err != nil {
		respondError(c, err)
		return
	}
	fields, err := fieldsFromForm(form)
	if err != nil {
		respondError(c, err)
		return
	}

	l, err := h.Store.Create(c.Request.Context(), fields, newImages(form.Files))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// PUT /api/listings/:id: частичное обновление, новые файлы и remove_images
func (h *ListingHandler) Update(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		notFound(c)
		return
	}
	form, err := upload.Read(c.Writer, c.Request, h.Limits)
	if err != nil {
		respondError(c, err)
		return
	}
	fields, err := fieldsFromForm(form)
	if err != nil {
		respondError(c, err)
		return
	}
	remove, err := removeImageIDs(form.Values)
	if err != nil {
		respondError(c, err)
		return
	}

	l, err := h.Store.Update(c.Request.Context(), id, fields, newImages(form.Files), remove)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// DELETE /api/listings/:id
func (h *ListingHandler) Delete(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		notFound(c)
		return
	}
	if err := h.Store.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func listingID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func newImages(files []upload.File) []store.NewImage {
	images := make([]store.NewImage, 0, len(files))
	for _, f := range files {
		images = append(images, store.NewImage{Filename: f.Filename, MimeType: f.MimeType, Data: f.Data})
	}
	return images
}
