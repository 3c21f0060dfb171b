package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voltplatform/volt-backend/internal/config"
	"github.com/voltplatform/volt-backend/internal/handler"
	"github.com/voltplatform/volt-backend/internal/metrics"
	"github.com/voltplatform/volt-backend/internal/middleware"
	"github.com/voltplatform/volt-backend/internal/service"
)

// Dependencies are the services and infrastructure the router serves
type Dependencies struct {
	Auth        *service.AuthService
	Races       *service.RaceService
	Analytics   *service.AnalyticsService
	Synthesis   *service.SynthesisService
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	Logger      *zap.Logger
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, deps *Dependencies) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	// CORS 中间件
	origin := cfg.Server.CORSOrigin
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Volt API is running",
		})
	})

	// Prometheus 指标
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	authHandler := handler.NewAuthHandler(deps.Auth)
	raceHandler := handler.NewRaceHandler(deps.Races, deps.Analytics, cfg.Upload.MaxBytes)
	synthesisHandler := handler.NewSynthesisHandler(deps.Synthesis)
	requireAuth := middleware.Auth(deps.Auth)

	// API 路由组
	api := r.Group("/api/v1")
	if deps.RateLimiter != nil {
		api.Use(middleware.RateLimit(deps.RateLimiter))
	}
	{
		// 账号接口
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", requireAuth, authHandler.Me)
		}

		// 赛道接口
		races := api.Group("/races", requireAuth)
		{
			races.POST("", raceHandler.Upload)
			races.GET("", raceHandler.List)
			races.GET("/:id", raceHandler.Get)
			races.DELETE("/:id", raceHandler.Delete)
			races.GET("/:id/elevation", raceHandler.Elevation)
			races.GET("/:id/gradient", raceHandler.Gradient)
			races.GET("/:id/metrics", raceHandler.Metrics)
		}

		// 路线合成接口
		synthesis := api.Group("/synthesis", requireAuth)
		{
			synthesis.POST("/generate", synthesisHandler.Generate)
			synthesis.GET("/results/:job_id", synthesisHandler.GetResults)
			synthesis.GET("/results/:job_id/download/:result_id", synthesisHandler.Download)
			synthesis.POST("/results/:job_id/save/:result_id", synthesisHandler.Save)
		}
	}

	return r
}
