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
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/bakery/internal/discovery"
	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/health"
	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/outbox"
	"github.com/vladislavdragonenkov/bakery/internal/service/sweeper"
	"github.com/vladislavdragonenkov/bakery/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/bakery/internal/version"
)

// outboxStaleAfter: возраст самого старого неотправленного события, после которого
// проверка outbox считается проваленной.
const outboxStaleAfter = 5 * time.Minute

// Run поднимает витрину и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithFields(log.Fields(version.Fields())).WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	registerer := prometheus.DefaultRegisterer
	storefrontMetrics := metrics.NewStorefrontMetricsWithRegisterer(registerer)
	workerMetrics := metrics.NewWorkerMetrics(registerer)
	httpMetrics := metrics.NewHTTPMetrics(registerer)

	svcs, err := newServices(cfg, deps.store, storefrontMetrics, logger)
	if err != nil {
		return err
	}

	if cfg.SeedDemoData {
		seeded, err := svcs.catalog.SeedDemo(ctx)
		if err != nil {
			return fmt.Errorf("seed demo catalog: %w", err)
		}
		logger.WithField("products", seeded).Info("demo catalog seeded")
	}

	// Kafka опциональна: без брокеров события outbox уходят в лог.
	var producer *kafka.Producer
	if cfg.KafkaEnabled() {
		producer, _ = initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	}
	defer closeKafkaProducer(producer, logger)

	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(workerMetrics),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	var publisher domain.OutboxPublisher
	if producer != nil {
		publisher = kafka.NewOutboxPublisher(producer, cfg.KafkaOrderTopic, cfg.KafkaInventoryTopic)
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic)))
	} else {
		publisher = outbox.NewLogPublisher(logger.WithField("component", "outbox-log"))
	}

	worker := outbox.NewWorker(deps.outboxRepo, publisher, workerOpts...)
	stopWorker, workerDone := startBackground(worker.Run)
	defer shutdownOutboxWorker(stopWorker, workerDone, logger)

	sweep := sweeper.New(deps.idempotencyRepo, svcs.carts,
		sweeper.WithLogger(logger.WithField("component", "sweeper")),
		sweeper.WithMetrics(workerMetrics),
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithBatchSize(cfg.SweepBatchSize),
		sweeper.WithCartIdleTTL(cfg.CartIdleTTL),
	)
	stopSweeper, sweeperDone := startBackground(sweep.Run)
	defer shutdownOutboxWorker(stopSweeper, sweeperDone, logger)

	if producer != nil {
		consumer, err := startRestockConsumer(ctx, cfg, svcs.ledger, producer, workerMetrics, logger)
		if err != nil {
			logger.WithError(err).Warn("restock consumer disabled")
		} else {
			defer stopConsumer(consumer, logger)
		}
	}

	healthHandler := health.NewHandler(version.GetVersion(), 0)
	healthHandler.Register("storage", true, deps.ping)
	healthHandler.Register("outbox", false, outboxCheck(deps.outboxRepo))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Carts:       svcs.carts,
		Checkout:    svcs.checkout,
		Payments:    svcs.payments,
		Orders:      svcs.orders,
		Catalog:     svcs.catalog,
		Ledger:      svcs.ledger,
		Assistant:   svcs.assistant,
		Idempotency: deps.idempotencyRepo,
		Auth:        httpapi.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		Metrics:     httpMetrics,
		Logger:      logger.WithField("component", "http"),
		Mode:        cfg.GinMode,
	})
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty, every request is served as a guest")
	}

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return err
	}
	grpcServer, healthServer := newGRPCServer(logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	registrar := registerInConsul(cfg, httpLis.Addr().String(), logger)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server failed")
	}

	if err := registrar.Deregister(); err != nil {
		logger.WithError(err).Warn("consul deregistration failed")
	}
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTPWithTimeout(httpSrv, cfg.ShutdownTimeout, logger)
	stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)

	return runErr
}

// newGRPCServer собирает служебный gRPC-сервер: health, reflection и метрики.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
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

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := grpchealth.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// registerInConsul регистрирует HTTP API, если задан CONSUL_ADDR. Ошибки не фатальны.
func registerInConsul(cfg Config, httpAddr string, logger *log.Entry) *discovery.Registrar {
	if cfg.ConsulAddr == "" {
		return nil
	}
	consulLogger := logger.WithField("component", "consul")
	registrar, err := discovery.NewRegistrar(cfg.ConsulAddr, consulLogger)
	if err != nil {
		consulLogger.WithError(err).Warn("consul unavailable, skipping registration")
		return nil
	}

	reg := discovery.Registration{
		Name:     cfg.ServiceName,
		HTTPAddr: httpAddr,
		Tags:     []string{"storefront", "v" + version.GetVersion()},
	}
	if host, port, err := net.SplitHostPort(httpAddr); err == nil {
		if host == "" || host == "::" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		reg.HealthURL = fmt.Sprintf("http://%s/ping", net.JoinHostPort(host, port))
	}
	if err := registrar.Register(reg); err != nil {
		consulLogger.WithError(err).Warn("consul registration failed")
		return nil
	}
	return registrar
}

// outboxCheck падает, если самое старое неотправленное событие ждёт дольше outboxStaleAfter.
func outboxCheck(repo domain.OutboxRepository) health.CheckFunc {
	return func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
			if age := time.Since(stats.OldestPendingAt); age > outboxStaleAfter {
				return fmt.Errorf("%d pending events, oldest %s old", stats.PendingCount, age.Truncate(time.Second))
			}
		}
		return nil
	}
}

// startBackground запускает run в отдельной горутине со своим контекстом.
// Фоновые задачи останавливаются после серверов, поэтому контекст не наследует ctx запуска.
func startBackground(run func(ctx context.Context)) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return cancel, done
}

// shutdownOutboxWorker отменяет фоновую задачу и ждёт её завершения не дольше 5 секунд.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("background worker did not stop in time")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.Liveness)
	mux.HandleFunc("/readyz", healthHandler.Readiness)

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
	shutdownHTTPWithTimeout(srv, 5*time.Second, logger)
}

func shutdownHTTPWithTimeout(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
