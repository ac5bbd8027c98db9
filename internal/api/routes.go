package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arimedika/server/internal/auth"
	ws "github.com/arimedika/server/internal/websocket"
)

// RegisterRoutes mounts the full HTTP surface on the given Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handlers, tokens *auth.Manager, gateway *ws.Gateway) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/auth/register", h.register)
	v1.POST("/auth/login", h.login)
	v1.POST("/auth/refresh", h.refresh)

	authed := v1.Group("", requireAuth(tokens))

	authed.GET("/profile", h.getProfile)
	authed.PUT("/profile", h.putProfile)

	authed.GET("/:domain/sessions", h.listSessions)
	authed.POST("/:domain/sessions", h.newSession)
	authed.GET("/:domain/sessions/:id", h.loadSession)
	authed.DELETE("/:domain/sessions/:id", h.deleteSession)
	authed.POST("/:domain/chat", h.sendMessage)

	authed.POST("/meals/analyze", h.analyzeMeal)
	authed.POST("/recipes/suggest", h.suggestRecipes)

	authed.POST("/records/share", h.shareRecord)
	authed.POST("/records/export", h.exportRecord)

	authed.POST("/documents", h.uploadDocument)
	authed.GET("/documents", h.listDocuments)
	authed.GET("/documents/presign", h.presignDocument)
	authed.DELETE("/documents", h.deleteDocument)

	e.GET("/ws/voice", func(c echo.Context) error {
		return gateway.Handle(c, currentUserID(c))
	}, requireAuth(tokens))
}
