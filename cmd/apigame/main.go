// Command apigame runs the Tabletop Tavern game-room service: the
// WebSocket fan-out hub and REST control plane over a shared room store.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/tabletop-tavern/api-game/internal/v1/config"
	"github.com/tabletop-tavern/api-game/internal/v1/events"
	"github.com/tabletop-tavern/api-game/internal/v1/health"
	"github.com/tabletop-tavern/api-game/internal/v1/httpapi"
	"github.com/tabletop-tavern/api-game/internal/v1/logging"
	"github.com/tabletop-tavern/api-game/internal/v1/middleware"
	"github.com/tabletop-tavern/api-game/internal/v1/presence"
	"github.com/tabletop-tavern/api-game/internal/v1/ratelimit"
	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/tabletop-tavern/api-game/internal/v1/store"
	"github.com/tabletop-tavern/api-game/internal/v1/tracing"
	"github.com/tabletop-tavern/api-game/internal/v1/transport"
)

func main() {
	envPaths := []string{".env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	ctx := context.Background()

	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "api-game", cfg.OtelCollectorAddr)
		if err != nil {
			logging.Warn(ctx, "tracing disabled: failed to start exporter", zap.Error(err))
		} else {
			defer func() { _ = tp.Shutdown(ctx) }()
		}
	}

	docStore, err := store.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logging.Fatal(ctx, "failed to connect to document store", zap.Error(err))
	}
	defer docStore.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	limiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
	}

	rooms := room.NewRoomService(docStore)
	maps := room.NewMapService(docStore)
	logs := room.NewLogService(docStore)
	presenceMgr := presence.NewManager(cfg.ReconnectGrace)

	dispatcher := events.NewDispatcher(&events.Deps{
		Rooms:   rooms,
		Maps:    maps,
		Logs:    logs,
		MaxLogs: cfg.MaxLogsPerRoom,
	})

	allowedOrigins := parseOrigins(cfg.AllowedOrigins)
	hub := transport.NewHub(rooms, presenceMgr, dispatcher, limiter, allowedOrigins)
	apiServer := httpapi.NewServer(rooms, maps, logs, presenceMgr, limiter, cfg.MaxLogsPerRoom)
	healthHandler := health.NewHandler(docStore)

	if cfg.DevelopmentMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("api-game"))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))

	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsGroup := router.Group("/ws")
	wsGroup.GET("/:roomId", hub.ServeWs)

	apiServer.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "api-game server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
	logging.Info(ctx, "server exiting")
}

// parseOrigins splits the comma-separated ALLOWED_ORIGINS env value into a
// list, defaulting to localhost for local development when unset.
func parseOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"http://localhost:3000"}
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
