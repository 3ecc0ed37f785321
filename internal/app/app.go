// Package app собирает витрину: хранилище, сервисы, HTTP API, служебные серверы и outbox worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/filmstore/internal/health"
	"github.com/vladislavdragonenkov/filmstore/internal/metrics"
	"github.com/vladislavdragonenkov/filmstore/internal/service/catalog"
	"github.com/vladislavdragonenkov/filmstore/internal/service/outbox"
	"github.com/vladislavdragonenkov/filmstore/internal/service/placement"
	"github.com/vladislavdragonenkov/filmstore/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/filmstore/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	outboxStopTimeout = 5 * time.Second
	grpcHealthService = "storefront"
)

// Run поднимает все компоненты и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer deps.close(logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)

	catalogOptions := []catalog.Option{catalog.WithLogger(logger.WithField("layer", "catalog"))}
	redisClient, filmCache := initFilmCache(ctx, cfg, logger.WithField("layer", "cache"))
	defer closeRedis(redisClient, logger)
	if filmCache != nil {
		catalogOptions = append(catalogOptions, catalog.WithCache(filmCache))
		healthHandler.RegisterChecker("redis", healthcheck.NewOptionalChecker("redis", filmCache.Ping))
	}
	catalogSvc := catalog.NewService(deps.films, catalogOptions...)

	engine := placement.NewEngine(deps.txs,
		placement.WithLogger(logger.WithField("layer", "placement")),
		placement.WithMetrics(metrics.NewPlacementMetrics()),
		placement.WithStrictPairing(cfg.StrictPairing),
		placement.WithAfterCommit(catalogSvc.InvalidateOrder),
	)

	producer, _ := initKafkaProducer(cfg.Brokers(), cfg.KafkaClientID, logger.WithField("layer", "kafka"))
	defer closeKafka(producer, logger)

	publisher, dlqPublisher := outboxPublishers(producer, cfg, logger)
	worker := outbox.NewWorker(deps.outboxRepo, publisher,
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	outboxCtx, cancelOutbox := context.WithCancel(ctx)
	outboxDone := make(chan struct{})
	go func() {
		defer close(outboxDone)
		worker.Run(outboxCtx)
	}()
	defer shutdownOutboxWorker(cancelOutbox, outboxDone, logger)

	api := httpapi.New(catalogSvc, deps.orders, engine, httpapi.Options{
		Logger:             logger.WithField("layer", "http"),
		Metrics:            metrics.NewHTTPMetrics(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		OrderRateLimit:     cfg.OrderRateLimit,
		IsDevelopment:      cfg.Development,
	})

	apiListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http api on %s: %w", cfg.HTTPAddr, err)
	}
	apiSrv := httpapi.NewServer(cfg.HTTPAddr, api.Routes())

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP API слушает %s", apiListener.Addr())
		if err := apiSrv.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api server: %w", err)
		}
	}()

	grpcServer, healthServer, err := startGRPCHealthServer(cfg.GRPCAddr, logger, errCh)
	if err != nil {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stopGRPC(grpcServer, healthServer, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopGRPC(grpcServer, healthServer, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// startGRPCHealthServer поднимает gRPC health-сервер с метриками; пустой addr выключает его.
func startGRPCHealthServer(addr string, logger *log.Entry, errCh chan<- error) (*grpc.Server, *health.Server, error) {
	if addr == "" {
		return nil, nil, nil
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen grpc on %s: %w", addr, err)
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcHealthService, healthpb.HealthCheckResponse_SERVING)
	grpcMetrics.InitializeMetrics(grpcServer)

	reflection.Register(grpcServer)

	go func() {
		logger.Infof("gRPC health сервер слушает %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	return grpcServer, healthServer, nil
}

// stopGRPC переводит health в NOT_SERVING и останавливает сервер, не дольше shutdownTimeout.
func stopGRPC(grpcServer *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	if grpcServer == nil {
		return
	}
	if healthServer != nil {
		healthServer.Shutdown()
	}

	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// shutdownOutboxWorker останавливает worker и ждёт завершения текущего батча.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(outboxStopTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}

// startMetricsServer запускает служебный HTTP-сервер: метрики Prometheus и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
