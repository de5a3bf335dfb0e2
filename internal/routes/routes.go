package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zaqqye/complab_backend/internal/controllers"
	"github.com/zaqqye/complab_backend/internal/logging"
	"github.com/zaqqye/complab_backend/internal/middleware"
	"github.com/zaqqye/complab_backend/internal/ws"
)

func Register(r *gin.Engine, d *Deps) {
	r.Use(corsMiddleware(d.Config.CORSAllowedOrigins))
	r.Use(middleware.RequestLogger(logging.Component(d.Log, "http")), middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Controllers
	authCfg := middleware.AuthConfig{JWTSecret: d.Config.JWTSecret, JWTExpiresIn: d.Config.AccessTTL()}
	authCtrl := &controllers.AuthController{DB: d.DB, Auth: authCfg, Log: logging.Component(d.Log, "auth")}
	computerCtrl := &controllers.ComputerController{
		Registry:  d.Registry,
		Presence:  d.Presence,
		Sink:      d.Sink,
		Publisher: d.Publisher,
		Log:       logging.Component(d.Log, "computers"),
	}
	unlockCtrl := &controllers.UnlockController{Coordinator: d.Coordinator}
	adminCtrl := &controllers.AdminController{Coordinator: d.Coordinator}
	labCtrl := &controllers.LaboratoryController{DB: d.DB}
	assignCtrl := &controllers.AssignmentController{Directory: d.Directory}

	// Realtime
	r.GET("/ws/dashboard", ws.DashboardHandler(d.Hubs))
	r.GET("/ws/computer/:ip", ws.KioskHandler(d.Hubs))

	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authCtrl.Login)
	}

	authMW := middleware.AuthMiddleware(d.DB, authCfg)

	// Agent and kiosk endpoints are called by lab machines without accounts.
	api := r.Group("/api")
	{
		api.POST("/heartbeat/:ip", computerCtrl.Heartbeat)
		api.GET("/computer/status/:ip", computerCtrl.Status)
		api.POST("/computer/register", computerCtrl.Register)
		api.POST("/pc-online/:ip", computerCtrl.Online)
		api.POST("/pc-offline/:ip", computerCtrl.Offline)
		api.PUT("/computer/state/:id", unlockCtrl.UpdateState)
		api.POST("/computer-unlock", unlockCtrl.UnlockAssigned)
		api.POST("/unlock-computers-by-lab/:labId/:rfid", unlockCtrl.UnlockByLab)
	}

	v1 := r.Group("/api/v1", authMW)
	{
		v1.GET("/auth/me", authCtrl.Me)
	}

	protected := r.Group("/api", authMW)
	{
		protected.GET("/computers", computerCtrl.List)
		protected.GET("/computers/:id/activity", computerCtrl.Activity)
		protected.GET("/laboratories", labCtrl.List)

		admin := protected.Group("", middleware.RequireRoles(controllers.RoleAdmin))
		{
			admin.PATCH("/admin/unlock/:id", adminCtrl.Unlock)
			admin.PATCH("/admin/lock/:id", adminCtrl.Lock)
			admin.POST("/laboratories", labCtrl.Create)
			admin.POST("/computer/bulk-assign", assignCtrl.BulkAssign)
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: len(origins) > 0,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
