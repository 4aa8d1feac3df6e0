/**
 * @description
 * This is the main entry point for the survey rewards service. It is
 * responsible for initializing all components: configuration, database
 * connection, the Daraja payment gateway client, the message broker, the
 * Redis rate limiter, repositories, the core application service, the stale
 * payment sweeper, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Optional .env loading for local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/darajaclient: Client for the Safaricom Daraja API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Frankie466/frank-quiz/internal/api"
	"github.com/Frankie466/frank-quiz/internal/app"
	"github.com/Frankie466/frank-quiz/internal/config"
	"github.com/Frankie466/frank-quiz/internal/store"
	"github.com/Frankie466/frank-quiz/pkg/darajaclient"
	"github.com/Frankie466/frank-quiz/pkg/rabbitmq"
)

func main() {
	// Load a local .env if present; environment variables win either way.
	if err := godotenv.Load(); err == nil {
		log.Println("level=info component=bootstrap msg=\".env loaded\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.CallbackToken) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"callback token must be configured\" env=CALLBACK_TOKEN")
	}

	log.Printf("level=info component=bootstrap msg=\"starting survey service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer; a broker outage degrades to the
	// no-op fallback rather than blocking startup.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the Daraja client.
	daraja := darajaclient.NewClient(
		cfg.DarajaBaseURL,
		cfg.DarajaConsumerKey,
		cfg.DarajaConsumerSecret,
		cfg.DarajaShortCode,
		cfg.DarajaPassKey,
	)

	// Redis is optional: without it payment initiation is simply unlimited.
	var limiter app.RateLimiter
	if cfg.PaymentRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; payment rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payment rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payment rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					limiter = app.NewRedisPaymentRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// The provider posts callbacks to this URL; the token segment is checked
	// before any callback is processed.
	callbackURL := strings.TrimSuffix(cfg.CallbackBaseURL, "/") + "/api/v1/payments/callback/" + cfg.CallbackToken

	service := app.NewService(
		repository,
		daraja,
		producer,
		limiter,
		callbackURL,
		cfg.PremiumPriceKES,
		cfg.PaymentRateLimitPerMinute,
	)

	// Seed the sample survey catalog; existing titles are left untouched.
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := service.SeedDefaultSurveys(seedCtx); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"survey seeding failed\" err=%v", err)
	}
	cancelSeed()

	// Start the stale payment sweeper in the background.
	sweeper := app.NewStalePaymentSweeper(repository, cfg.StalePaymentSweepSpec, cfg.StalePaymentCutoffMinutes)
	sweeper.Start()

	handlers := api.NewHandlers(service, cfg.JWTSecret, time.Duration(cfg.JWTExpiryHours)*time.Hour, cfg.CallbackToken)
	router := api.Routes(handlers, cfg.JWTSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	<-sweeper.Stop().Done()
	log.Println("level=info component=http msg=\"shutdown complete\"")
}
