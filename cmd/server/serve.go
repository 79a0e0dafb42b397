package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/storefront-cart/internal/adapter/handler"
	"github.com/rl1809/storefront-cart/internal/adapter/storage"
	"github.com/rl1809/storefront-cart/internal/core/service"
)

const shutdownTimeout = 5 * time.Second

func serve(ctx context.Context, cfg Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return errors.Wrap(err, "open mysql")
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping mysql")
	}
	log.Info("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	log.Info("connected to redis")

	if cfg.EnableTracing {
		tp := initTracing(log)
		defer tp.Shutdown(context.Background())
	} else {
		log.Info("tracing disabled")
	}

	redisAdapter := storage.NewRedisAdapter(rdb, cfg.CartTTL)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	catalog := storage.NewCachedCatalog(mysqlAdapter, cfg.CatalogTTL, cfg.CatalogCapacity)
	go catalog.Start()
	defer catalog.Stop()

	sessions := service.NewSessionManager(redisAdapter, log, cfg.SessionIdleTTL)
	go sessions.Start()
	defer sessions.Stop()
	orderService := service.NewOrderService(redisAdapter, cfg.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.RunWorker(id, orderService.GetOrderQueue(), mysqlAdapter, log)
		}(i)
	}
	log.WithField("workers", cfg.Workers).Info("started order workers")

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LogUnary(log)))
	handler.RegisterCartServiceServer(grpcServer, handler.NewGRPCHandler(sessions, catalog, orderService))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.CartServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.GRPCAddr)
	}
	go func() {
		log.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC server error")
		}
	}()

	httpHandler := handler.NewHTTPHandler(sessions, catalog, orderService, mysqlAdapter)

	var h http.Handler = httpHandler.Router()
	h = handler.LogRequests(log, h)
	h = handler.EnsureSessionID(h)
	if cfg.EnableTracing {
		h = otelhttp.NewHandler(h, "storefront")
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: h,
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
	log.Info("HTTP server stopped")

	healthServer.Shutdown()
	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	orderService.Close()
	wg.Wait()
	log.Info("workers stopped")

	return nil
}

func initTracing(log logrus.FieldLogger) *sdktrace.TracerProvider {
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	log.Info("tracing provider initialized (no exporter configured)")
	return tp
}
