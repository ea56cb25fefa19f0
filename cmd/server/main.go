package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	invoicingapp "github.com/erp/invoicing/internal/application/invoicing"
	reportapp "github.com/erp/invoicing/internal/application/report"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/erp/invoicing/internal/infrastructure/auth"
	"github.com/erp/invoicing/internal/infrastructure/cache"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/delivery"
	"github.com/erp/invoicing/internal/infrastructure/einvoice"
	"github.com/erp/invoicing/internal/infrastructure/event"
	"github.com/erp/invoicing/internal/infrastructure/i18n"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/infrastructure/persistence"
	"github.com/erp/invoicing/internal/infrastructure/printing"
	"github.com/erp/invoicing/internal/infrastructure/scheduler"
	"github.com/erp/invoicing/internal/infrastructure/storage"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/erp/invoicing/internal/infrastructure/vies"
	"github.com/erp/invoicing/internal/interfaces/http/handler"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/erp/invoicing/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/erp/invoicing/docs"
)

//go:generate swag init -d ../../ -g cmd/server/main.go -o ../../docs --parseInternal

//	@title			Invoicing API
//	@version		1.0
//	@description	Multi-tenant invoicing: numbering, taxes, payments, credit notes and documents

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}

	// OpenTelemetry: traces, metrics and the zap log bridge
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	})
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logProvider.Bridge(log, zapcore.InfoLevel)

	prof := cfg.Telemetry.Profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:              prof.Enabled,
		ServerAddress:        prof.ServerAddress,
		ApplicationName:      serviceName,
		BasicAuthUser:        prof.BasicAuthUser,
		BasicAuthPassword:    prof.BasicAuthPassword,
		ProfileTypes:         prof.ProfileTypes,
		MutexProfileFraction: prof.MutexProfileFraction,
		BlockProfileRate:     prof.BlockProfileRate,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if prof.SpanProfiles && profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	log.Info("Starting invoicing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.DBTraceEnabled,
		IncludeVariables: cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
		DBName:           cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Redis-backed stores, with in-memory fallbacks outside production
	cacheFactory := cache.NewFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	defer func() {
		if err := cacheFactory.Close(); err != nil {
			log.Error("Error closing redis", zap.Error(err))
		}
	}()
	idempotencyStore, err := cacheFactory.IdempotencyStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	counter, err := cacheFactory.SerialCounter(ctx, cfg.Numbering.CounterBackend)
	if err != nil {
		log.Fatal("Failed to create serial counter", zap.Error(err))
	}
	vatCache := cacheFactory.VATCache(ctx)

	// Repositories and domain services
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB, counter)

	rates, err := buildRateTable(cfg.Tax)
	if err != nil {
		log.Fatal("Invalid tax configuration", zap.Error(err))
	}
	calculator := invoicing.NewTaxCalculator(rates)

	allocator, err := buildAllocator(cfg.Numbering, invoiceRepo)
	if err != nil {
		log.Fatal("Invalid numbering configuration", zap.Error(err))
	}

	// Metrics
	invoiceMetrics, err := telemetry.NewInvoiceMetrics(meterProvider.Meter("invoicing"), log)
	if err != nil {
		log.Fatal("Failed to create invoice metrics", zap.Error(err))
	}
	defer invoiceMetrics.Stop()

	// Event bus; invoice events are published once their transaction commits
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewAuditHandler(log))

	invoiceService := invoicingapp.NewInvoiceService(txScope, invoiceRepo, paymentRepo, calculator, allocator, log)
	invoiceService.SetIdempotencyStore(idempotencyStore, 0)
	invoiceService.SetEventPublisher(eventBus)
	invoiceService.SetMetrics(invoiceMetrics)

	// Printing
	translator := i18n.NewTranslator()
	var pdfRenderer invoicing.PDFRenderer
	chrome, err := printing.NewChromedpRenderer(&printing.ChromedpConfig{
		DefaultTimeout: cfg.PDF.Timeout,
		ExecPath:       cfg.PDF.ChromePath,
		NoSandbox:      os.Getuid() == 0,
		Logger:         log,
	})
	if err != nil {
		log.Warn("PDF rendering disabled", zap.Error(err))
	} else {
		defer func() {
			if err := chrome.Close(); err != nil {
				log.Error("Error closing PDF renderer", zap.Error(err))
			}
		}()
		templates, err := printing.NewTemplateStore(&printing.TemplateStoreConfig{ExternalDir: cfg.PDF.TemplateDir})
		if err != nil {
			log.Fatal("Failed to load invoice templates", zap.Error(err))
		}
		pdfRenderer = printing.NewInvoiceRenderer(chrome, templates, printing.NewTemplateEngine(translator), log)
	}

	// Email
	var sender invoicing.EmailSender
	if cfg.SMTP.Host != "" {
		smtpSender, err := delivery.NewSMTPSender(cfg.SMTP, log)
		if err != nil {
			log.Fatal("Invalid SMTP configuration", zap.Error(err))
		}
		sender = smtpSender
	} else {
		log.Warn("SMTP host not configured, email delivery disabled")
	}

	// Document archive
	archive, err := buildArchive(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to initialize document archive", zap.Error(err))
	}

	validator := vies.NewValidator(cfg.VIES, log, vies.WithCache(vatCache, 0))

	docOpts := []invoicingapp.DocumentServiceOption{
		invoicingapp.WithDocumentArchive(archive),
		invoicingapp.WithTranslator(translator),
		invoicingapp.WithDocumentMetrics(invoiceMetrics),
	}

	// Background delivery queue
	var queueClient *asynq.Client
	if cfg.Queue.Enabled {
		queueClient = asynq.NewClient(delivery.RedisOpt(cfg.Redis))
		queue := delivery.NewAsynqQueue(queueClient, cfg.Queue.MaxRetry, cfg.Queue.Timeout)
		defer func() {
			if err := queue.Close(); err != nil {
				log.Error("Error closing delivery queue", zap.Error(err))
			}
		}()
		docOpts = append(docOpts, invoicingapp.WithDeliveryQueue(queue))
	}

	documentService := invoicingapp.NewDocumentService(
		invoiceRepo, invoiceService, pdfRenderer, einvoice.Providers(), sender, validator, log, docOpts...,
	)
	reportService := reportapp.NewReportService(invoiceRepo, paymentRepo, log)

	workerDone := make(chan struct{})
	if cfg.Queue.Enabled {
		worker := delivery.NewWorker(delivery.RedisOpt(cfg.Redis), cfg.Queue, documentService, log)
		go func() {
			defer close(workerDone)
			if err := worker.Run(ctx); err != nil {
				log.Error("Delivery worker stopped", zap.Error(err))
			}
		}()
	} else {
		close(workerDone)
	}

	// Overdue sweep
	var overdue *scheduler.OverdueScheduler
	if cfg.Scheduler.Enabled {
		overdue = scheduler.NewOverdueScheduler(cfg.Scheduler, invoiceRepo, invoiceService, log)
		if err := overdue.Start(ctx); err != nil {
			log.Fatal("Failed to start overdue scheduler", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.AllowOrigins

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{ServiceName: serviceName, Enabled: cfg.Telemetry.Enabled}),
		middleware.HTTPMetrics(meterProvider.Meter("http")),
		logger.GinMiddleware(log),
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	jwtService := auth.NewJWTService(cfg.JWT)
	apiMiddleware := []gin.HandlerFunc{
		middleware.Tenant(middleware.TenantConfig{
			JWT:          jwtService,
			RequireToken: jwtService.Enabled() && cfg.App.Env == "production",
			Logger:       log,
		}),
		middleware.SpanAttributes(),
	}
	if cfg.HTTP.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		go sweepRateLimiter(ctx, limiter, log)
		apiMiddleware = append(apiMiddleware, middleware.RateLimit(limiter))
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
		"redis":    cacheFactory.Ping,
	})

	router.NewRouter(engine).
		Use(apiMiddleware...).
		Public(systemHandler).
		Public(router.Swagger(middleware.SwaggerGuard(middleware.SwaggerConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		}))).
		Register(handler.NewInvoiceHandler(invoiceService)).
		Register(handler.NewDocumentHandler(documentService)).
		Register(handler.NewReportHandler(reportService)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}
	stop()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if overdue != nil {
		if err := overdue.Stop(shutdownCtx); err != nil {
			log.Error("Overdue scheduler did not stop cleanly", zap.Error(err))
		}
	}
	<-workerDone
	_ = eventBus.Stop(shutdownCtx)
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down log export", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func buildRateTable(cfg config.TaxConfig) (*invoicing.RateTable, error) {
	var opts []invoicing.RateTableOption
	if cfg.StampDutyThreshold != "" || cfg.StampDutyAmount != "" {
		threshold, err := valueobject.ParseAmount(cfg.StampDutyThreshold)
		if err != nil {
			return nil, fmt.Errorf("stamp duty threshold: %w", err)
		}
		amount, err := valueobject.ParseAmount(cfg.StampDutyAmount)
		if err != nil {
			return nil, fmt.Errorf("stamp duty amount: %w", err)
		}
		opts = append(opts, invoicing.WithStampDuty(threshold, amount))
	}
	return invoicing.NewRateTable(opts...), nil
}

func buildAllocator(cfg config.NumberingConfig, lookup invoicing.NumberLookup) (*invoicing.Allocator, error) {
	abbreviations := make(invoicing.StaticAbbreviations, len(cfg.TenantAbbreviations))
	for raw, abbr := range cfg.TenantAbbreviations {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("tenant abbreviation %q: %w", raw, err)
		}
		abbreviations[id] = abbr
	}
	patterns := make(map[uuid.UUID]string, len(cfg.TenantPatterns))
	for raw, pattern := range cfg.TenantPatterns {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("tenant pattern %q: %w", raw, err)
		}
		patterns[id] = pattern
	}
	// the store is supplied per transaction by the transaction scope
	return invoicing.NewAllocator(nil, lookup, abbreviations, invoicing.AllocatorConfig{
		DefaultPattern: cfg.DefaultPattern,
		TenantPatterns: patterns,
	})
}

func buildArchive(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (invoicing.DocumentArchive, error) {
	if cfg.Bucket == "" {
		log.Info("No storage bucket configured, archiving documents in memory")
		return storage.NewMemoryArchive(), nil
	}
	s3, err := storage.NewS3Archive(ctx, cfg, storage.WithLogger(log), storage.WithPresignExpiry(cfg.PresignExpiry))
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}

func sweepRateLimiter(ctx context.Context, limiter *middleware.RateLimiter, log *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				log.Debug("Rate limiter swept idle tenants", zap.Int("removed", n))
			}
		}
	}
}
