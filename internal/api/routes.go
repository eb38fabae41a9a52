package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cvforge/internal/api/middleware"
	"cvforge/internal/auth"
	"cvforge/internal/config"
	"cvforge/internal/engine"
	"cvforge/internal/session"
	"cvforge/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	engineClient *engine.Client,
	storageClient *storage.Client,
	sessions *session.Manager,
	logger *slog.Logger,
	cfg *config.Config,
) {
	sessionHandler := NewSessionHandler(sessions)
	importHandler := NewImportHandler(engineClient, redisClient, logger, cfg.API.ClamdAddr, cfg.Limits.ImportsPerHour)

	// 避免把带类型的 nil 指针塞进接口（那样 nil 判断会失效）。
	var thumbStore thumbnailStorage
	if storageClient != nil {
		thumbStore = storageClient
	}
	resumeHandler := NewResumeHandler(db, asynqClient, thumbStore, cfg.Limits.MaxResumesPerGuest, cfg.Limits.MaxResumesPerUser)
	wsHandler := NewWsHandler(redisClient, authService, logger, nil)
	authMiddleware := middleware.AuthMiddleware(authService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		sessionGroup := v1.Group("/session")
		sessionGroup.Use(authMiddleware)
		{
			sessionGroup.PUT("/document", sessionHandler.PutDocument)
			sessionGroup.PUT("/settings", sessionHandler.PutSettings)
			sessionGroup.GET("/state", sessionHandler.GetState)
			sessionGroup.GET("/preview", sessionHandler.GetPreview)
			sessionGroup.POST("/export", sessionHandler.PostExport)
			sessionGroup.DELETE("", sessionHandler.DeleteSession)
		}

		importGroup := v1.Group("/import")
		importGroup.Use(authMiddleware)
		{
			importGroup.POST("", importHandler.Import)
			importGroup.POST("/stream", importHandler.ImportStream)
		}

		resumeGroup := v1.Group("/resumes")
		resumeGroup.Use(authMiddleware)
		{
			resumeGroup.GET("", resumeHandler.ListResumes)
			resumeGroup.POST("", resumeHandler.CreateResume)
			resumeGroup.GET("/:id", resumeHandler.GetResume)
			resumeGroup.PUT("/:id", resumeHandler.UpdateResume)
			resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
		}
	}
}
