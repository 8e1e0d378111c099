package handler

import (
	"net/http"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	// MaxMultipartMemory caps the in-memory part of a multipart body; the
	// rest spills to disk.
	MaxMultipartMemory int64

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func NewRouter(h *Handler, auth middleware.Authenticator, cfg RouterConfig, log *zap.Logger) *gin.Engine {
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	if cfg.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = cfg.MaxMultipartMemory
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.NewHTTPMetrics(cfg.Registerer).Handler())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			"Authorization",
			"X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	requireAuth := middleware.RequireAuth(auth)
	users := router.Group("/api/v1/users")
	{
		users.POST("/register", h.Register)
		users.POST("/login", h.Login)
		users.POST("/refresh-token", h.RefreshToken)
		users.GET("/c/:username", middleware.OptionalAuth(auth), h.ChannelProfile)

		secured := users.Group("", requireAuth)
		secured.POST("/logout", h.Logout)
		secured.POST("/change-password", h.ChangePassword)
		secured.GET("/current-user", h.CurrentUser)
		secured.PATCH("/update-account", h.UpdateAccount)
		secured.PATCH("/avatar", h.UpdateAvatar)
		secured.PATCH("/cover-image", h.UpdateCoverImage)
		secured.GET("/history", h.WatchHistory)
	}
	return router
}
