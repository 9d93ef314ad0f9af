package main

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/crowdqueue/internal/admin"
	"github.com/crowdqueue/internal/playback"
	"github.com/crowdqueue/internal/queue"
	"github.com/crowdqueue/internal/skip"
	"github.com/crowdqueue/internal/spotify"
	"github.com/crowdqueue/internal/ws"
	"github.com/crowdqueue/pkg/config"
	"github.com/crowdqueue/pkg/database"
	"github.com/crowdqueue/pkg/events"
	"github.com/crowdqueue/pkg/logger"
	"github.com/crowdqueue/pkg/store"
)

func main() {
	cfg := config.Load()

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Redis backs every hot-path structure: queue, votes, sessions, tallies.
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	st := store.NewRedisStore(redisClient)

	// MySQL is the optional durable ledger; the engine runs without it.
	var db *database.MySQLDB
	if cfg.MySQLEnabled() {
		var err error
		db, err = database.NewMySQLDB(cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLDatabase)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
	} else {
		log.Info("mysql not configured, play history disabled")
	}

	var pub events.Publisher = events.NopPublisher{}
	var kafkaClient *events.KafkaClient
	if cfg.KafkaEnabled() {
		kafkaClient = events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		defer kafkaClient.Close()
		pub = kafkaClient
	} else {
		log.Info("kafka not configured, events disabled")
	}

	tokens := spotify.NewTokenManager(cfg.SpotifyClientID, cfg.SpotifyClientSecret, st, log)
	spotifyClient := spotify.NewClient(tokens, cfg.SpotifyRedirectURI, cfg.CatalogRequestsPerSec)

	queueService := queue.NewService(st, spotifyClient, pub, db, cfg.CooldownWindow, log)
	adminService := admin.NewService(st, cfg.SessionTTL)
	skipService := skip.NewService(st, spotifyClient, pub, cfg.SkipThreshold, log)
	orchestrator := playback.NewOrchestrator(st, queueService, spotifyClient, pub, db, log)

	queueHandler := queue.NewHandler(queueService, log)
	adminHandler := admin.NewHandler(adminService, log)
	skipHandler := skip.NewHandler(skipService, log)
	playbackHandler := playback.NewHandler(orchestrator, log)
	spotifyHandler := spotify.NewHandler(spotifyClient, tokens, st, cfg.FrontendURL, cfg.SearchRateLimit, cfg.SearchRateWindow, log)
	wsHandler := ws.NewHandler(log)

	if kafkaClient != nil {
		go wsHandler.Run(context.Background(), kafkaClient)
	}

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", admin.AdminHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/")
	{
		queueHandler.RegisterRoutes(public)
		adminHandler.RegisterRoutes(public)
		skipHandler.RegisterRoutes(public)
		spotifyHandler.RegisterRoutes(public)
		playbackHandler.RegisterRoutes(public)
		public.GET("/ws/:venueId", wsHandler.HandleWebSocket)
	}

	protected := router.Group("/")
	protected.Use(admin.Middleware(adminService))
	{
		queueHandler.RegisterAdminRoutes(protected)
		adminHandler.RegisterAdminRoutes(protected)
		skipHandler.RegisterAdminRoutes(protected)
		playbackHandler.RegisterAdminRoutes(protected)
	}

	log.Info("server starting", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
