package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"listings/internal/auth"
	"listings/internal/upload"
)

// Deps: всё, что нужно роутеру
type Deps struct {
	Store    ListingStore
	Gate     *auth.Gate
	Sessions auth.SessionOptions
	Limits   upload.Limits
	Feed     FeedSource // если nil, /api/feed не регистрируется
}

// NewRouter собирает gin-движок со всеми /api маршрутами
func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()
	r.Use(auth.Sessions(d.Sessions))

	listings := &ListingHandler{Store: d.Store, Limits: d.Limits}
	images := &ImageHandler{Store: d.Store}

	api := r.Group("/api")

	// открытые роуты
	api.GET("/listings", listings.List)
	api.GET("/listings/:id", listings.Get)
	api.GET("/images/:id", images.Get)

	for _, prefix := range []string{"", "/panel"} {
		api.POST(prefix+"/login", d.Gate.Login)
		api.POST(prefix+"/logout", d.Gate.Logout)
		api.GET(prefix+"/me", d.Gate.Me)
	}

	if d.Feed != nil {
		feed := &FeedHandler{Feed: d.Feed}
		api.GET("/feed", feed.Get)
	}

	// только для админа
	admin := api.Group("/")
	admin.Use(d.Gate.RequireAdmin())
	{
		admin.POST("/listings", listings.Create)
		admin.PUT("/listings/:id", listings.Update)
		admin.DELETE("/listings/:id", listings.Delete)
		admin.DELETE("/images/:id", images.Delete)
	}

	return r
}

// WithCORS пускает админку с других origin (cookie сессии тоже)
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type"},
	})
	return c.Handler(h)
}
