package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notification-sync-service/config"
	grpcHandlers "notification-sync-service/internal/handler/grpc"
	httpHandlers "notification-sync-service/internal/handler/http"
	"notification-sync-service/internal/infrastructure/fanout"
	"notification-sync-service/internal/infrastructure/queue"
	"notification-sync-service/internal/infrastructure/repository/postgres"
	"notification-sync-service/internal/infrastructure/websocket"
	"notification-sync-service/internal/usecase"
	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/metrics"
	"notification-sync-service/pkg/throttling"
	"notification-sync-service/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

// eventBus es el fan-out que además publica
type eventBus interface {
	usecase.EventFanout
	usecase.EventPublisher
}

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a TOML configuration file")
	pflag.Parse()

	// Cargar configuración
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Configurar logger
	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	logging.SetDefaultLogger(logger)

	logger.Info("Starting notification sync service %s", cfg.Server.ServiceID)

	ctx := context.Background()

	// Conectar a la base de datos
	dbConn, dialect, err := postgres.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	notificationRepo := postgres.NewNotificationRepository(dbConn, dialect)

	// Reparto de eventos de dominio
	local := fanout.NewLocalFanout(logger)
	var bus eventBus = local
	var natsConn *nats.Conn
	if cfg.Fanout.Mode == "nats" {
		natsConn, err = fanout.ConnectNats(ctx, cfg.Fanout.NatsURL, cfg.Fanout.ConnectWait, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS: %v", err)
		}
		compressor, err := utils.NewMessageCompressor(cfg.Fanout.CompressionThreshold, cfg.Fanout.CompressionLevel)
		if err != nil {
			logger.Fatal("Failed to create fan-out compressor: %v", err)
		}
		defer compressor.Close()

		natsFanout := fanout.NewNatsFanout(natsConn, local, cfg.Fanout.SubjectPrefix, compressor, logger)
		if err := natsFanout.Start(); err != nil {
			logger.Fatal("Failed to subscribe to fan-out subjects: %v", err)
		}
		defer natsFanout.Close()
		bus = natsFanout
	}

	// Ejecutor serial por suscripción
	pool := queue.NewWorkerPool(cfg.Subscriptions.Workers, cfg.Subscriptions.QueueSize, logger)
	pool.Start()
	executor := queue.NewSerialExecutor(pool, logger)

	// Crear servicios de dominio
	tokenService := usecase.NewTokenService(cfg.JWT.Secret, cfg.JWT.TokenExpiry)
	processingService := usecase.NewNotificationProcessingService(notificationRepo, bus, logger)
	reconciler := usecase.NewUpdateReconciler(usecase.NewRepositorySnapshotFetcher(notificationRepo), logger)

	hub := websocket.NewHub(logger)
	coordinator := usecase.NewSubscriptionCoordinator(
		cfg.Server.ServiceID,
		cfg.Subscriptions.MaxLimit,
		reconciler,
		bus,
		hub,
		executor,
		processingService,
		logger,
	)

	throttler := throttling.NewKeyedThrottler(cfg.Throttling.CommandsPerSecond, cfg.Throttling.Burst, cfg.Throttling.Expiry)
	wsServer := websocket.NewServer(hub, tokenService, coordinator, throttler, cfg.WebSocket, logger)
	cleaner := websocket.NewConnectionCleaner(hub, cfg.WebSocket.CleanupInterval, cfg.WebSocket.InactivityTimeout, logger)
	cleaner.Start()

	// Crear handlers HTTP
	notificationHandler := httpHandlers.NewNotificationHandler(processingService, cfg.Subscriptions.MaxLimit)
	healthHandler := httpHandlers.NewHealthHandler(cfg.Server.ServiceID)
	healthHandler.AddCheck("database", dbConn.PingContext)
	if natsConn != nil {
		healthHandler.AddCheck("nats", natsCheck(natsConn))
	}

	// Crear router
	router := mux.NewRouter()
	notificationHandler.RegisterRoutes(router, tokenService)
	router.HandleFunc(cfg.WebSocket.Path, wsServer.HandleConnection)
	router.HandleFunc("/health", healthHandler.Check).Methods(http.MethodGet)

	if cfg.Monitoring.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
		router.Use(metrics.HTTPMiddleware)
	}

	// Configurar middleware
	router.Use(createLoggingMiddleware(logger))

	// Configurar servidor HTTP
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Servidor gRPC de salud
	var healthServer *grpcHandlers.HealthServer
	if cfg.GRPC.Enabled {
		healthServer, err = grpcHandlers.NewHealthServer(cfg.GRPC.Port, "notification-sync", logger)
		if err != nil {
			logger.Fatal("Failed to start gRPC health server: %v", err)
		}
		healthServer.Start()
		healthServer.SetServing(true)
	}

	// Iniciar el servidor en una goroutine
	go func() {
		logger.Info("Starting server on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	waitForSignal(logger)

	// Ordenar el cierre: primero dejar de aceptar tráfico, luego vaciar las suscripciones
	if healthServer != nil {
		healthServer.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
	}

	cleaner.Stop()
	wsServer.Shutdown()
	coordinator.Stop()
	pool.Stop()
	throttler.Stop()

	if healthServer != nil {
		healthServer.Stop()
	}

	logger.Info("Server gracefully stopped")
}

// newLogger construye el logger; con directorio configurado escribe también a archivo rotado
func newLogger(cfg config.LoggingConfig) (*logging.Logger, func(), error) {
	options := []logging.LoggerOption{
		logging.WithLevel(logging.ParseLevel(cfg.Level)),
		logging.WithPrefix("notification-sync"),
		logging.WithColors(cfg.UseColors),
	}

	closeFn := func() {}
	if cfg.Directory != "" {
		fileHandler, err := logging.NewFileHandler(cfg.Directory, "notification-sync")
		if err != nil {
			return nil, nil, err
		}
		options = append(options, logging.WithOutput(io.MultiWriter(os.Stdout, fileHandler)))
		closeFn = func() { fileHandler.Close() }
	}

	return logging.NewLogger(options...), closeFn, nil
}

func natsCheck(conn *nats.Conn) httpHandlers.HealthCheck {
	return func(context.Context) error {
		if !conn.IsConnected() {
			return fmt.Errorf("nats status %s", conn.Status())
		}
		return nil
	}
}

// Middleware para loggear peticiones
func createLoggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("%s %s %s", r.Method, r.URL.Path, time.Since(start))
		})
	}
}

func waitForSignal(logger *logging.Logger) {
	// Canal para recibir señales de sistema
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	sig := <-stop
	logger.Info("Received %s, shutting down gracefully...", sig)
}
