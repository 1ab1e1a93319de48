/**
 * @description
 * This is the main entry point for the appeal-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Schedule for the fulfillment recovery sweep.
 * - internal/api, internal/app, internal/citation, internal/config,
 *   internal/letter, internal/store: Internal packages for the service.
 * - pkg/lobclient, pkg/stripeclient: Clients for the mail carrier and payment provider.
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
	"github.com/robfig/cron/v3"

	"github.com/curbappeal/appeal-service/internal/api"
	"github.com/curbappeal/appeal-service/internal/app"
	"github.com/curbappeal/appeal-service/internal/citation"
	"github.com/curbappeal/appeal-service/internal/config"
	"github.com/curbappeal/appeal-service/internal/domain"
	"github.com/curbappeal/appeal-service/internal/letter"
	"github.com/curbappeal/appeal-service/internal/store"
	"github.com/curbappeal/appeal-service/pkg/lobclient"
	"github.com/curbappeal/appeal-service/pkg/rabbitmq"
	"github.com/curbappeal/appeal-service/pkg/stripeclient"
)

func main() {
	// Load a local .env into the process environment when present. Deployed
	// instances configure through real environment variables.
	_ = godotenv.Load()

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.IntakeTokenSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"intake token secret must be configured\" env=INTAKE_TOKEN_SECRET")
	}
	if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		log.Println("level=warn component=bootstrap msg=\"stripe webhook secret missing; webhook deliveries will be rejected\" env=STRIPE_WEBHOOK_SECRET")
	}
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		log.Println("level=warn component=bootstrap msg=\"stripe secret key missing; checkout creation will fail\" env=STRIPE_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.LobAPIKey) == "" {
		log.Println("level=warn component=bootstrap msg=\"lob api key missing; letter dispatch will fail\" env=LOB_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting appeal-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
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

	// Initialize the RabbitMQ producer to publish appeal lifecycle events.
	// This service only publishes; a broker outage degrades to a no-op fallback.
	var eventProducer rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the payment provider and mail carrier clients with a shared
	// outbound timeout.
	externalTimeout := time.Duration(cfg.ExternalCallTimeoutSeconds) * time.Second
	stripeClient := stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey)
	stripeClient.HTTPClient.Timeout = externalTimeout
	lobClient := lobclient.NewClient(cfg.LobAPIBaseURL, cfg.LobAPIKey)
	lobClient.HTTPClient.Timeout = externalTimeout

	// Redis is optional: without it the service runs with rate limiting disabled.
	var redisClient *redis.Client
	rateLimitingEnabled := cfg.CitationRateLimitPerMinute > 0 || cfg.CheckoutRateLimitPerMinute > 0
	if rateLimitingEnabled {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}
	var limiter *app.RedisRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Compile the jurisdiction registry. A malformed entry is a boot failure.
	registry, err := citation.NewRegistry()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"jurisdiction registry invalid\" err=%v", err)
	}
	validator := citation.NewValidator(registry, cfg.CitationConfidenceThreshold)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	appealService := app.NewService(
		repository,
		stripeClient,
		lobClient,
		letter.NewComposer(),
		validator,
		registry,
		eventProducer,
		app.Settings{
			AppealFeeCents:           cfg.AppealFeeCents,
			CertifiedUpgradeCents:    cfg.CertifiedUpgradeCents,
			Currency:                 cfg.CheckoutCurrency,
			CheckoutSuccessURL:       cfg.CheckoutSuccessURL,
			CheckoutCancelURL:        cfg.CheckoutCancelURL,
			CheckoutClaimStaleWindow: time.Duration(cfg.CheckoutClaimStaleMinutes) * time.Minute,
			FulfillmentMaxAttempts:   cfg.FulfillmentMaxAttempts,
			FulfillmentStaleWindow:   time.Duration(cfg.FulfillmentStaleMinutes) * time.Minute,
			ReturnName:               cfg.ReturnName,
			ReturnAddress: domain.Address{
				Line1:      cfg.ReturnAddressLine1,
				Line2:      cfg.ReturnAddressLine2,
				City:       cfg.ReturnAddressCity,
				State:      cfg.ReturnAddressState,
				PostalCode: cfg.ReturnAddressPostalCode,
			},
		},
	)

	// Initialize the API handlers and routes.
	appealHandlers := api.NewAppealHandlers(appealService, limiter, api.HandlerConfig{
		IntakeTokenSecret:     cfg.IntakeTokenSecret,
		IntakeTokenTTL:        time.Duration(cfg.IntakeTokenTTLHours) * time.Hour,
		StripeWebhookSecret:   cfg.StripeWebhookSecret,
		CitationRatePerMinute: cfg.CitationRateLimitPerMinute,
		CheckoutRatePerMinute: cfg.CheckoutRateLimitPerMinute,
	})
	router := api.AppealRoutes(appealHandlers, cfg.IntakeTokenSecret, cfg.InternalAPIKey, cfg.AllowedOrigins())

	// Schedule the fulfillment recovery sweep. The same pass also reclaims
	// events stuck in applied after a crash, so it must keep running even when
	// webhook traffic is healthy.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
		sweepCtx, cancelSweep := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancelSweep()
		if _, sweepErr := appealService.SweepFulfillment(sweepCtx, cfg.SweepBatchSize); sweepErr != nil {
			log.Printf("level=warn component=sweeper msg=\"scheduled sweep failed\" err=%v", sweepErr)
		}
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid sweep schedule\" schedule=%q err=%v", cfg.SweepSchedule, err)
	}
	sweeper.Start()
	log.Printf("level=info component=bootstrap msg=\"fulfillment sweeper scheduled\" schedule=%q batch=%d", cfg.SweepSchedule, cfg.SweepBatchSize)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	// Stop scheduling new sweep runs; Stop's context drains an in-flight run.
	sweepDone := sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	select {
	case <-sweepDone.Done():
	case <-ctx.Done():
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
