package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/willowglen/reportpdf/internal/admission"
	"github.com/willowglen/reportpdf/internal/artifact"
	"github.com/willowglen/reportpdf/internal/bus"
	"github.com/willowglen/reportpdf/internal/config"
	"github.com/willowglen/reportpdf/internal/domain"
	"github.com/willowglen/reportpdf/internal/fetch"
	"github.com/willowglen/reportpdf/internal/listener"
	"github.com/willowglen/reportpdf/internal/render"
	"github.com/willowglen/reportpdf/internal/render/pdf"
	"github.com/willowglen/reportpdf/internal/route"
	"github.com/willowglen/reportpdf/internal/signature"
	"github.com/willowglen/reportpdf/internal/status"
)

func main() {
	logger := log.New(os.Stdout, "[reportpdf] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	messageBus, busCloser := setupBus(cfg, logger)
	defer busCloser()

	registry, registryCloser := setupAdmission(ctx, cfg, logger)
	defer registryCloser()

	fetcher := fetch.NewClient(fetch.ClientConfig{
		BaseURL:       cfg.APIBaseURL,
		AuthEmail:     cfg.APIAuthEmail,
		AuthPassword:  cfg.APIAuthPassword,
		Timeout:       time.Duration(cfg.APITimeoutMS) * time.Millisecond,
		MaxRetries:    cfg.APIMaxRetries,
		HTTPClient:    &http.Client{},
		Limiter:       rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), cfg.APIRateLimitBurst),
		ImageBasePath: cfg.ImageBasePath,
		Logger:        logger,
	})

	signatureSource, sourceCloser := setupSignatureSource(ctx, cfg, fetcher, logger)
	defer sourceCloser()

	renderers := render.NewRegistry()
	renderers.Register(domain.ReportKindCM, pdf.CM())
	renderers.Register(domain.ReportKindServerPM, pdf.ServerPM())
	renderers.Register(domain.ReportKindRTUPM, pdf.RTUPM())

	routes := route.NewTable(cfg.TopicPrefix)

	requests := listener.New(listener.Dependencies{
		Bus:        messageBus,
		Routes:     routes,
		Admission:  registry,
		Fetcher:    fetcher,
		Signatures: signature.NewResolver(signatureSource, logger),
		Renderer:   renderers,
		Writer:     artifact.NewWriter(cfg.ArtifactBasePath, logger),
		Status:     status.NewPublisher(messageBus, routes, registry, logger),
		Logger:     logger,
	})

	if err := requests.Start(ctx); err != nil {
		logger.Fatalf("failed subscribing trigger routes: %v", err)
	}
	logger.Printf("report generation service started prefix=%s artifacts=%s", cfg.TopicPrefix, cfg.ArtifactBasePath)

	<-ctx.Done()
	logger.Printf("shutdown signal received, draining in-flight jobs")
	requests.Wait()
	logger.Printf("shutdown complete")
}

func setupBus(cfg config.Config, logger *log.Logger) (bus.Bus, func()) {
	if cfg.MQTTBrokerURL == "" {
		logger.Printf("MQTT_BROKER_URL not set, using in-process bus")
		localBus := bus.NewLocalBus(0, logger)
		return localBus, localBus.Close
	}

	mqttBus, err := bus.NewMQTTBus(bus.MQTTConfig{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
	}, logger)
	if err != nil {
		logger.Fatalf("failed connecting to mqtt broker: %v", err)
	}
	logger.Printf("connected to mqtt broker %s client_id=%s", cfg.MQTTBrokerURL, cfg.MQTTClientID)
	return mqttBus, mqttBus.Close
}

func setupAdmission(ctx context.Context, cfg config.Config, logger *log.Logger) (admission.Registry, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not set, using in-memory job admission")
		return admission.NewMemoryRegistry(), func() {}
	}

	registry, err := admission.NewRedisRegistry(ctx, admission.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      time.Duration(cfg.AdmissionTTLSeconds) * time.Second,
	})
	if err != nil {
		logger.Fatalf("failed connecting to redis: %v", err)
	}
	logger.Printf("redis job admission enabled addr=%s", cfg.RedisAddr)
	return registry, func() {
		if err := registry.Close(); err != nil {
			logger.Printf("failed closing redis client: %v", err)
		}
	}
}

func setupSignatureSource(ctx context.Context, cfg config.Config, apiSource signature.Source, logger *log.Logger) (signature.Source, func()) {
	if cfg.SignatureSource != config.SignatureSourcePostgres {
		return apiSource, func() {}
	}

	pgSource, err := signature.NewPGSource(ctx, cfg.DatabaseURL, cfg.ImageBasePath)
	if err != nil {
		logger.Fatalf("failed connecting to signature database: %v", err)
	}
	logger.Printf("postgres signature source enabled")
	return pgSource, pgSource.Close
}
