package server

import (
	"net/http"
	"os"

	"github.com/min9-wan9/Chat/internal/auth"
	"github.com/min9-wan9/Chat/internal/config"
	"github.com/min9-wan9/Chat/internal/metrics"
	"github.com/min9-wan9/Chat/internal/mw"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, h *Handler, wsHandler gin.HandlerFunc, limiter *mw.RL, policy *mw.OriginPolicy) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(policy))
	// 控制单个 IP+路由的速率。
	r.Use(mw.RateLimit(limiter))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", wsHandler)

	files := r.Group("/api/files")
	files.POST("/upload", h.Upload)
	files.GET("/:filename", h.Download)

	api := r.Group("/api/v1")
	api.GET("/rooms", h.ListRooms)

	admin := api.Group("")
	admin.Use(auth.AdminMiddleware(cfg.AdminJWTSecret))
	admin.DELETE("/rooms/:name", h.DeleteRoom)

	if fi, err := os.Stat(cfg.StaticDir); err == nil && fi.IsDir() {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.StaticDir))))
	}
	return r
}
