package auth

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"listings/internal/models"
)

const (
	SessionName = "listings_session"
	adminKey    = "admin"
)

// SessionOptions: параметры cookie сессии
type SessionOptions struct {
	Secret []byte
	TTL    time.Duration
	Secure bool
}

// Sessions: middleware с подписанной cookie-сессией
func Sessions(opts SessionOptions) gin.HandlerFunc {
	store := cookie.NewStore(opts.Secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// Gate проверяет пароль админа и флаг admin в сессии
type Gate struct {
	passwordHash string
}

func NewGate(passwordHash string) *Gate {
	return &Gate{passwordHash: passwordHash}
}

// IsAdmin: есть ли в сессии флаг админа
func IsAdmin(c *gin.Context) bool {
	v, _ := sessions.Default(c).Get(adminKey).(bool)
	return v
}

// RequireAdmin пропускает дальше только админа
func (g *Gate) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "admin login required",
			})
			return
		}
		c.Next()
	}
}

type loginRequest struct {
	Password string `json:"password" form:"password"`
}

// Login: POST /api/login {password}
func (g *Gate) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid login payload"})
		return
	}
	if !models.CheckPassword(g.passwordHash, req.Password) {
		// не подсказываем, насколько пароль был близок
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid credentials"})
		return
	}

	sess := sessions.Default(c)
	sess.Clear()
	sess.Set(adminKey, true)
	if err := sess.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Logout сбрасывает сессию, даже если её не было
func (g *Gate) Logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true})
	_ = sess.Save()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me отвечает {authed: bool}
func (g *Gate) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authed": IsAdmin(c)})
}
