package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/lanepos/backend/docs"
	"github.com/lanepos/backend/internal/config"
	"github.com/lanepos/backend/internal/database"
	"github.com/lanepos/backend/internal/handlers"
	mW "github.com/lanepos/backend/internal/middleware"
	"github.com/lanepos/backend/internal/providers"
	"github.com/lanepos/backend/internal/services"
	"github.com/lanepos/backend/internal/zoho"
)

// @title Lane POS Backend API
// @version 1.0
// @description Order and payment lifecycle API for point-of-sale lanes
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Lane POS Backend API"
	docs.SwaggerInfo.Description = "Order and payment lifecycle API for point-of-sale lanes"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	cfg := config.LoadProviderConfig()

	// Payment channel adapters
	cloudAdapter := providers.NewCloudTerminalAdapter(providers.CloudConfig{
		BaseURL:      cfg.Cloud.BaseURL,
		ClientID:     cfg.Cloud.ClientID,
		ClientSecret: cfg.Cloud.ClientSecret,
		Timeout:      cfg.Cloud.Timeout,
	})
	registry := providers.NewRegistry()
	registry.Register(providers.NewLANTerminalAdapter(providers.LANConfig{
		Subnet:      cfg.LAN.DiscoveryCIDR,
		DefaultPort: cfg.LAN.DefaultPort,
		SaleTimeout: cfg.LAN.RequestTimeout,
		ScanTimeout: cfg.LAN.ProbeTimeout,
	}))
	registry.Register(cloudAdapter)
	registry.Register(providers.NewBluetoothReaderAdapter(cfg.Processor.BaseURL, cfg.Processor.APIKey, cfg.Processor.Timeout))
	registry.Register(providers.NewCardOnFileAdapter(cfg.Processor.BaseURL, cfg.Processor.APIKey, cfg.Processor.Timeout))
	registry.Register(providers.NewManualEntryAdapter(cfg.Processor.BaseURL, cfg.Processor.APIKey, cfg.Processor.Timeout))

	// Services
	orderService := services.NewOrderService(db)
	poller := services.NewPollingCoordinator(services.PollConfig{
		MaxAttempts: cfg.Poll.MaxAttempts,
		Interval:    cfg.Poll.Interval,
	})
	zohoClient := zoho.NewClient(zoho.Config{
		BaseURL:      cfg.Zoho.BaseURL,
		AccountsURL:  cfg.Zoho.AccountsURL,
		OrgID:        cfg.Zoho.OrgID,
		ClientID:     cfg.Zoho.ClientID,
		ClientSecret: cfg.Zoho.ClientSecret,
		RefreshToken: cfg.Zoho.RefreshToken,
		Timeout:      cfg.Zoho.Timeout,
	})
	syncService := services.NewSyncService(db, redisClient, orderService, zohoClient)
	paymentService := services.NewPaymentService(orderService, registry, poller, syncService)
	reconcilerService := services.NewReconcilerService(orderService, registry)

	// Handlers
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, reconcilerService)
	providerHandler := handlers.NewProviderHandler(registry, cloudAdapter)
	syncHandler := handlers.NewSyncHandler(syncService, orderService)

	// Background Zoho forwarder
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go syncService.RunWorker(workerCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(180 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/orders", orderHandler.CreateOrder)
			r.Get("/orders", orderHandler.ListOrders)
			r.Get("/orders/{id}", orderHandler.GetOrder)
			r.Post("/orders/{id}/payment", paymentHandler.AttachPayment)
			r.Post("/orders/{id}/void", paymentHandler.VoidPayment)
			r.Post("/orders/{id}/refund", paymentHandler.RefundPayment)
			r.Post("/orders/{id}/sync", syncHandler.RetrySync)

			r.Get("/payments/{transactionId}", paymentHandler.GetPaymentStatus)
			r.Post("/payments/{transactionId}/poll", paymentHandler.PollPayment)

			r.Get("/providers", providerHandler.ListProviders)
			r.Get("/providers/{provider}/devices", providerHandler.DiscoverDevices)
			r.Get("/providers/{provider}/test", providerHandler.TestConnection)
			r.Post("/providers/cloud/authenticate", providerHandler.AuthenticateCloud)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Long write timeout: a LAN sale request blocks until the cardholder
	// finishes at the terminal.
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
