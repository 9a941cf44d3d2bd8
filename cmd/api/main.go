package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/KachiAlex/kex/internal/auth"
	"github.com/KachiAlex/kex/internal/cache"
	kexhttp "github.com/KachiAlex/kex/internal/http"
	"github.com/KachiAlex/kex/internal/payment"
	"github.com/KachiAlex/kex/internal/publisher"
	"github.com/KachiAlex/kex/internal/reconciler"
	"github.com/KachiAlex/kex/internal/repository"
	"github.com/KachiAlex/kex/internal/service"
)

type Config struct {
	HTTPPort        string
	MongoURI        string
	MongoDBName     string
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    []string
	JWTSecret       string
	ClientBaseURL   string
	ServerBaseURL   string
	PaystackSecret  string
	FlwSecret       string
	FlwWebhookHash  string
	GoogleClientID  string
	GoogleSecret    string
	CORSOrigins     []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "4000"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     getEnv("MONGO_DB_NAME", "kex"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		JWTSecret:       getEnv("JWT_SECRET", "dev_secret"),
		ClientBaseURL:   getEnv("CLIENT_BASE_URL", "http://localhost:5173"),
		ServerBaseURL:   getEnv("SERVER_BASE_URL", "http://localhost:4000"),
		PaystackSecret:  getEnv("PAYSTACK_SECRET_KEY", ""),
		FlwSecret:       getEnv("FLUTTERWAVE_SECRET_KEY", ""),
		FlwWebhookHash:  getEnv("FLUTTERWAVE_WEBHOOK_HASH", ""),
		GoogleClientID:  getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		CORSOrigins:     strings.Split(getEnv("CORS_ORIGIN", "http://localhost:5173"), ","),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	orderRepo := repository.NewOrderRepository(mongoDB)
	userRepo := repository.NewUserRepository(mongoDB)
	productRepo := repository.NewProductRepository(mongoDB)
	categoryRepo := repository.NewCategoryRepository(mongoDB)
	ticketRepo := repository.NewTicketRepository(mongoDB)
	newsletterRepo := repository.NewNewsletterRepository(mongoDB)
	outboxRepo := repository.NewOutboxRepository(mongoDB)

	for _, create := range []func(context.Context) error{
		orderRepo.CreateIndexes,
		userRepo.CreateIndexes,
		categoryRepo.CreateIndexes,
		ticketRepo.CreateIndexes,
		newsletterRepo.CreateIndexes,
		outboxRepo.CreateIndexes,
	} {
		if err := create(ctx); err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")

	paystack := payment.NewPaystack(payment.PaystackConfig{SecretKey: cfg.PaystackSecret})
	flutterwave := payment.NewFlutterwave(payment.FlutterwaveConfig{
		SecretKey:   cfg.FlwSecret,
		WebhookHash: cfg.FlwWebhookHash,
	})

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, 7*24*time.Hour)
	orderService := service.NewOrderService(orderRepo, outboxRepo, cfg.ClientBaseURL, paystack, flutterwave)
	authService := service.NewAuthService(userRepo, tokens)
	catalogService := service.NewCatalogService(productRepo, cache.NewRedisCache(redisClient))

	var oauthConfig *oauth2.Config
	if cfg.GoogleClientID != "" && cfg.GoogleSecret != "" {
		oauthConfig = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleSecret,
			RedirectURL:  cfg.ServerBaseURL + "/api/auth/google/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}

	router := kexhttp.NewRouter(kexhttp.RouterConfig{
		Tokens:         tokens,
		Orders:         kexhttp.NewOrdersHandler(orderService, cfg.RequestTimeout),
		Auth:           kexhttp.NewAuthHandler(authService, oauthConfig, cfg.ClientBaseURL, cfg.RequestTimeout),
		Products:       kexhttp.NewProductsHandler(catalogService, cfg.RequestTimeout),
		Categories:     kexhttp.NewCategoriesHandler(categoryRepo, cfg.RequestTimeout),
		Tickets:        kexhttp.NewTicketsHandler(ticketRepo, cfg.RequestTimeout),
		Newsletter:     kexhttp.NewNewsletterHandler(newsletterRepo, cfg.RequestTimeout),
		AllowedOrigins: cfg.CORSOrigins,
		RateRPS:        5,
		RateBurst:      20,
	})

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	outboxPoller := publisher.NewOutboxPoller(outboxRepo, cfg.KafkaBrokers...)
	defer outboxPoller.Close()
	go outboxPoller.Run(workerCtx)

	sweep := reconciler.New(orderRepo, orderService)
	go sweep.Run(workerCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "kex-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("API listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	mongoDB.Client().Disconnect(shutdownCtx)
	log.Println("server exited")
}
