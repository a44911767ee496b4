package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "logichat/internal/app"
	"logichat/internal/attachment"
	"logichat/internal/bootstrap"
	"logichat/internal/cache"
	"logichat/internal/platform/rabbitmq"
	"logichat/internal/repository"
	"logichat/internal/transport/http/handler"
	"logichat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)

	publisher := rabbitmq.NewEventPublisher(app.MQConn, app.Config.RabbitMQ.ChatEventQueue)
	unreadCache := cache.NewUnreadCache(app.Redis, time.Duration(app.Config.Redis.UnreadTTLSeconds)*time.Second)
	stager := attachment.NewStager(app.BlobStore, int64(app.Config.Chat.MaxAttachmentBytes))

	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		publisher,
		unreadCache,
		stager,
		app.Hub,
		app.Config.Chat.SessionPageSize,
		app.Config.Chat.MessagePageSize,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.POST("/sessions", chatHandler.CreateOrGetSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.POST("/sessions/:id/close", chatHandler.CloseSession)
	chatGroup.POST("/sessions/:id/read", chatHandler.MarkRead)
	chatGroup.GET("/sessions/:id/search", chatHandler.SearchMessages)
	chatGroup.GET("/sessions/:id/events", chatHandler.StreamEvents)
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.GET("/messages", chatHandler.ListMessages)
	chatGroup.GET("/unread", chatHandler.UnreadCount)

	return router
}
