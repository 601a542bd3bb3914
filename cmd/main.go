package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Leganyst/court-booking/internal/config"
	"github.com/Leganyst/court-booking/internal/db"
	"github.com/Leganyst/court-booking/internal/events"
	"github.com/Leganyst/court-booking/internal/logger"
	"github.com/Leganyst/court-booking/internal/model"
	"github.com/Leganyst/court-booking/internal/obs"
	"github.com/Leganyst/court-booking/internal/recurring"
	"github.com/Leganyst/court-booking/internal/repository"
	"github.com/Leganyst/court-booking/internal/sequence"
	"github.com/Leganyst/court-booking/internal/service"
)

func main() {
	// 1. Конфиг из env (и .env, если лежит рядом).
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Environment)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracer")
	}

	// 2. Подключаемся к БД через GORM.
	gormDB, err := db.NewGormDB(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("init db")
	}

	// 3. Миграции моделей.
	if err := model.AutoMigrate(gormDB); err != nil {
		log.Fatal().Err(err).Msg("auto migrate")
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("sql DB")
	}
	defer sqlDB.Close()

	// 4. Счётчики кодов: в Postgres или в Redis.
	var store sequence.Store
	switch cfg.SequenceBackend {
	case "redis":
		rdb, err := db.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("init redis")
		}
		defer rdb.Close()
		store = repository.NewRedisSequenceStore(rdb, cfg.Redis.Prefix)
	default:
		store = repository.NewGormSequenceStore(gormDB)
	}

	// 5. Публикация событий.
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Rabbit.URL != "" {
		p, err := events.NewRabbitPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("init rabbitmq")
		}
		publisher = p
	}
	defer publisher.Close()

	loc, err := cfg.Venue.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("venue timezone")
	}

	// 6. Сервис движка бронирования.
	calendarSvc := service.NewCalendarService(
		repository.New(gormDB),
		sequence.NewGenerator(store),
		publisher,
		recurring.Config{
			MaxSpanMonths:      cfg.Venue.MaxSpanMonths,
			AdvanceBookingDays: cfg.Venue.AdvanceBookingDays,
			Location:           loc,
			Now:                time.Now,
		},
	)

	// 7. Настраиваем gRPC-сервер.
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(service.RecoveryInterceptor, service.LoggingInterceptor),
	)
	service.RegisterCalendarServer(grpcServer, service.NewHandler(calendarSvc))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(service.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("listen")
	}

	log.Info().Str("addr", cfg.GRPCAddr).Str("sequence", cfg.SequenceBackend).Msg("core gRPC server listening")

	// 8. Запускаем сервер в горутине.
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve")
			stop()
		}
	}()

	// 9. Грейсфул-шатдаун по сигналу.
	<-ctx.Done()

	log.Info().Msg("shutting down gRPC server...")
	healthSrv.Shutdown()
	grpcServer.GracefulStop()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(flushCtx); err != nil {
		log.Warn().Err(err).Msg("tracer shutdown")
	}
}
