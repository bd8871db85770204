// Package main 是服务端的入口点
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ai-pc-server/internal/ai"
	"ai-pc-server/internal/cache"
	"ai-pc-server/internal/config"
	"ai-pc-server/internal/handler"
	"ai-pc-server/internal/middleware"
	"ai-pc-server/internal/model"
	"ai-pc-server/internal/repository"
	"ai-pc-server/internal/service"
	"ai-pc-server/internal/websocket"
	"ai-pc-server/pkg/jwt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}

	// 自动迁移数据库表
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Fatalf("Failed to init redis: %v", err)
	}

	// 初始化 JWT 服务
	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpire,
		cfg.JWT.RefreshExpire,
	)

	// 初始化 Repository 层
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// 初始化 AI 路由器
	// 只有配置了 API Key 的提供商会被注册
	aiRouter := ai.NewRouter(cfg)

	// 初始化 Service 层
	authService := service.NewAuthService(userRepo, redisCache, jwtService)
	userService := service.NewUserService(userRepo)
	sessionService := service.NewSessionService(sessionRepo, messageRepo, userRepo)
	completionService := service.NewCompletionService(sessionRepo, messageRepo, userRepo, aiRouter)

	// 初始化 WebSocket Hub
	// Hub 实现 service.Notifier，编排产生的事件通过它推给会话房间
	wsHub := websocket.NewHub(sessionService, completionService)
	completionService.SetNotifier(wsHub)
	go wsHub.Run() // 在单独的 goroutine 中运行

	// 初始化 Handler 层
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	aiHandler := handler.NewAIHandler(completionService, aiRouter)
	wsHandler := websocket.NewHandler(wsHub, jwtService, redisCache)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	router := gin.New()

	// 全局中间件
	router.Use(middleware.RecoveryMiddleware()) // 恢复 panic
	router.Use(middleware.LoggerMiddleware())   // 请求日志
	router.Use(middleware.CORSMiddleware())     // CORS

	// 注册路由
	registerRoutes(router, cfg, jwtService, redisCache, authHandler, userHandler, sessionHandler, aiHandler, wsHandler)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
		// 不设置全局 WriteTimeout，AI 调用和 WebSocket 都是长请求
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// 创建关闭上下文，设置超时
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// 关闭 Redis 连接
	if err := redisCache.Close(); err != nil {
		log.Printf("Failed to close redis: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	// 构建 DSN (Data Source Name)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.MySQL.Username,
		cfg.MySQL.Password,
		cfg.MySQL.Host,
		cfg.MySQL.Port,
		cfg.MySQL.Database,
		cfg.MySQL.Charset,
	)

	// 配置 GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	// 连接数据库
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 获取底层 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.MaxLifetime) * time.Second)

	log.Println("Database connected successfully")
	return db, nil
}

// autoMigrate 自动迁移数据库表
func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Println("Database migrations completed")
	return nil
}

// registerRoutes 注册所有路由
func registerRoutes(
	router *gin.Engine,
	cfg *config.Config,
	jwtService *jwt.JWTService,
	redisCache *cache.RedisCache,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	sessionHandler *handler.SessionHandler,
	aiHandler *handler.AIHandler,
	wsHandler *websocket.Handler,
) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 路由组
	v1 := router.Group("/api/v1")

	// 认证相关
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken) // 刷新 Token
	}
	// 登出需要有效 Token
	auth.POST("/logout", middleware.AuthMiddleware(jwtService, redisCache), authHandler.Logout)

	// 用户相关（需要登录）
	users := v1.Group("/users")
	users.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		users.GET("/me", userHandler.GetProfile)
		users.PUT("/me/preferred-model", userHandler.UpdatePreferredModel)
		users.PUT("/me/password", userHandler.ChangePassword)
	}

	// 会话相关（需要登录）
	sessions := v1.Group("/sessions")
	sessions.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		sessions.POST("", sessionHandler.CreateSession)
		sessions.GET("", sessionHandler.ListSessions)
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.POST("/:id/end", sessionHandler.EndSession)
		sessions.DELETE("/:id", sessionHandler.DeleteSession)
		sessions.GET("/:id/messages", sessionHandler.GetMessages)
	}

	// AI 相关（需要登录，对话接口额外限流）
	aiGroup := v1.Group("/ai")
	aiGroup.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		aiGroup.POST("/process",
			middleware.AIRateLimitMiddleware(redisCache, cfg.AI.RateLimit),
			aiHandler.ProcessMessage)
		aiGroup.GET("/models", aiHandler.ListModels)
	}

	// WebSocket 路由
	wsHandler.RegisterRoutes(router)
}
