package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/weekend-academy-api/api/swagger"
	"github.com/noah-isme/weekend-academy-api/internal/authz"
	"github.com/noah-isme/weekend-academy-api/internal/handler"
	"github.com/noah-isme/weekend-academy-api/internal/middleware"
	"github.com/noah-isme/weekend-academy-api/internal/notify"
	"github.com/noah-isme/weekend-academy-api/internal/repository"
	"github.com/noah-isme/weekend-academy-api/internal/service"
	"github.com/noah-isme/weekend-academy-api/pkg/cache"
	"github.com/noah-isme/weekend-academy-api/pkg/config"
	"github.com/noah-isme/weekend-academy-api/pkg/database"
	"github.com/noah-isme/weekend-academy-api/pkg/export"
	"github.com/noah-isme/weekend-academy-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/weekend-academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/weekend-academy-api/pkg/middleware/requestid"
	"github.com/noah-isme/weekend-academy-api/pkg/storage"
)

// @title Weekend Academy API
// @version 1.0.0
// @description Registrations, session capacity and attendance for a weekend academy
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalog cache and rate limiting disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	classRepo := repository.NewClassRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	userRepo := repository.NewUserRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	reassignmentRepo := repository.NewReassignmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient)

	var notifier notify.Notifier = notify.NewLogNotifier(logr)
	if cfg.Mail.Enabled {
		notifier = notify.NewSMTPNotifier(cfg.Mail)
	}
	dispatcher := notify.NewDispatcher(notifier, metricsSvc, cfg.Notifications, logr)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	if err := metricsSvc.TrackQueueDepth("notifications", dispatcher.Pending); err != nil {
		logr.Warn("queue depth gauge not registered", zap.Error(err))
	}

	fileStore, err := storage.NewLocalStorage(cfg.Uploads)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}

	ledger := service.NewCapacityLedger(sessionRepo, metricsSvc)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled && redisClient != nil)
	lockTimeout := cfg.Database.LockTimeout

	authSvc := service.NewAuthService(userRepo, teacherRepo, studentRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	courseSvc := service.NewCourseService(db, courseRepo, teacherRepo, sessionRepo, cacheSvc, validate, logr, cfg.Catalog.CacheTTL, lockTimeout)
	registrationSvc := service.NewRegistrationService(db, courseRepo, sessionRepo, registrationRepo, studentRepo, ledger, dispatcher, metricsSvc, validate, logr, service.RegistrationConfig{
		StudentNumberPrefix: cfg.Academy.StudentNumberPrefix,
		ExpireAfter:         cfg.Registrations.ExpireAfter,
		LockTimeout:         lockTimeout,
	})
	attendanceSvc := service.NewAttendanceService(db, attendanceRepo, studentRepo, sessionRepo, classRepo, export.NewPDFExporter(), metricsSvc, validate, logr, service.AttendanceConfig{
		Location:    cfg.Academy.Location(),
		LockTimeout: lockTimeout,
	})
	reassignmentSvc := service.NewReassignmentService(db, reassignmentRepo, studentRepo, sessionRepo, ledger, dispatcher, metricsSvc, validate, logr, lockTimeout)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	reassignmentHandler := handler.NewReassignmentHandler(reassignmentSvc)
	uploadHandler := handler.NewUploadHandler(fileStore)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, logr)

	r := gin.New()
	if cfg.Uploads.MaxFileSizeBytes > 0 {
		r.MaxMultipartMemory = cfg.Uploads.MaxFileSizeBytes
	}
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.Static("/uploads", fileStore.Dir())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	limit := func(scope string) gin.HandlerFunc {
		return middleware.RateLimit(rateLimitRepo, scope, cfg.RateLimit.PerMinute, logr)
	}

	api.POST("/auth/login", authHandler.Login)
	api.GET("/courses", courseHandler.ListActive)
	api.GET("/courses/:id/sessions", courseHandler.Sessions)
	api.POST("/register", limit("register"), registrationHandler.Submit)
	api.POST("/uploads", limit("uploads"), uploadHandler.Upload)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	secured.GET("/auth/me", authHandler.Me)

	registrations := secured.Group("/registrations")
	registrations.GET("", middleware.Require(authz.RegistrationRead), registrationHandler.List)
	registrations.POST("/bulk-approve", middleware.Require(authz.RegistrationBulkApprove), registrationHandler.BulkApprove)
	registrations.POST("/expire", middleware.Require(authz.RegistrationExpire), registrationHandler.Expire)
	registrations.GET("/:id", middleware.Require(authz.RegistrationRead), registrationHandler.Get)
	registrations.POST("/:id/approve", middleware.Require(authz.RegistrationApprove), registrationHandler.Approve)
	registrations.POST("/:id/reject", middleware.Require(authz.RegistrationReject), registrationHandler.Reject)

	attendance := secured.Group("/attendance")
	attendance.POST("/scan", middleware.Require(authz.AttendanceMark), attendanceHandler.Scan)
	attendance.POST("/scan/manual", middleware.Require(authz.AttendanceMark), attendanceHandler.Manual)
	attendance.POST("/scan/bulk", middleware.Require(authz.AttendanceMark), attendanceHandler.Bulk)
	attendance.POST("/auto-mark-absent", middleware.Require(authz.AttendanceAutoAbsent), attendanceHandler.AutoMarkAbsent)
	attendance.GET("/sessions/:id", middleware.Require(authz.AttendanceRead), attendanceHandler.SessionReport)
	attendance.GET("/sessions/:id/sheet.pdf", middleware.Require(authz.AttendanceRead), attendanceHandler.SessionSheet)

	secured.GET("/students/:id/qr", middleware.Require(authz.StudentQR), attendanceHandler.StudentQR)

	reassignments := secured.Group("/reassignments")
	reassignments.POST("", middleware.Require(authz.ReassignmentRequest), reassignmentHandler.Create)
	reassignments.GET("", middleware.Require(authz.ReassignmentRead), reassignmentHandler.List)
	reassignments.POST("/:id/approve", middleware.Require(authz.ReassignmentReview), reassignmentHandler.Approve)
	reassignments.POST("/:id/deny", middleware.Require(authz.ReassignmentReview), reassignmentHandler.Deny)

	courses := secured.Group("/courses")
	courses.Use(middleware.Require(authz.CourseManage))
	courses.POST("/:id/replace-head-teacher", courseHandler.ReplaceHeadTeacher)
	courses.PATCH("/:id/status", courseHandler.UpdateStatus)
	courses.DELETE("/:id", courseHandler.Delete)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
