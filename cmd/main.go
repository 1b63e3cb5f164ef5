package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"match-engine-go/internal/api/handler"
	"match-engine-go/internal/api/middleware"
	"match-engine-go/internal/api/router"
	appConfig "match-engine-go/internal/config"
	"match-engine-go/internal/constants"
	"match-engine-go/internal/consumer"
	"match-engine-go/internal/logger"
	"match-engine-go/internal/matchcache"
	"match-engine-go/internal/matching"
	"match-engine-go/internal/outbox"
	"match-engine-go/internal/scheduler"
	"match-engine-go/internal/service"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/tracing"
	"match-engine-go/pkg/ratelimit"
)

var version = "1.0.0" //nolint:gochecknoglobals

func main() {
	var configPath string
	var samplePath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.StringVar(&samplePath, "init-config", "", "Write a sample config to the given path and exit")
	pflag.Parse()

	if samplePath != "" {
		if err := appConfig.CreateSampleConfig(samplePath); err != nil {
			logger.Fatal().Err(err).Msg("生成示例配置失败")
		}
		logger.Info().Str("path", samplePath).Msg("示例配置已生成")
		return
	}

	cfg, err := appConfig.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	logger.InstallHertz()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("配置校验失败")
	}
	logger.Info().Str("version", version).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("初始化链路追踪失败")
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := shutdownTracing(sctx); err != nil {
				logger.Error().Err(err).Msg("关闭链路追踪失败")
			}
		}()
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()

	engine, err := matching.New(
		matching.WithPolicy(cfg.Matching),
		matching.WithLogger(logger.Logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化匹配引擎失败")
	}

	// 快速层缺失时只用持久层；不能把 nil *Redis 直接传给接口
	var fast matchcache.FastStore
	if storageManager.Redis != nil {
		fast = storageManager.Redis
	}
	cache := matchcache.New(fast, storageManager.MySQL, matchcache.Config{
		FastTTL:          appConfig.GetDuration(cfg.Cache.FastTTL, time.Hour),
		PersistentMaxAge: appConfig.GetDuration(cfg.Cache.PersistentMaxAge, 7*24*time.Hour),
	}, logger.Logger)

	matchService := service.NewMatchService(
		storage.NewProfileRepository(storageManager.MySQL, cfg.RabbitMQ.MatchEventsExchange, cfg.RabbitMQ.ProfileChangedRoutingKey),
		storage.NewJobRepository(storageManager.MySQL),
		cache,
		engine,
		appConfig.GetDuration(cfg.Server.MatchTimeout, 5*time.Second),
		logger.Logger,
	)

	// 没有 RabbitMQ 时发件箱消息留在表中，等下次带 MQ 启动时补发
	var relay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, logger.Logger, outbox.Options{
			PollingInterval: appConfig.GetDuration(cfg.Outbox.PollInterval, 5*time.Second),
			BatchSize:       cfg.Outbox.BatchSize,
			MaxRetries:      cfg.Outbox.MaxRetries,
		})
		relay.Start(ctx)

		recompute := consumer.NewRecomputeConsumer(storageManager.RabbitMQ, matchService, logger.Logger, consumer.Options{
			Queue:         cfg.RabbitMQ.RecomputeQueue,
			Prefetch:      cfg.RabbitMQ.PrefetchCount,
			Workers:       cfg.RabbitMQ.ConsumerWorkers,
			MaxRetries:    cfg.RabbitMQ.MaxRetries,
			RetryInterval: appConfig.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second) / 5,
		})
		if err := recompute.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("启动档案变更消费者失败")
		}
	} else {
		logger.Warn().Msg("RabbitMQ 不可用，后台重算已停用")
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(storageManager.MySQL, logger.Logger, scheduler.Options{
			StaleMatchSpec:   cfg.Scheduler.StaleMatchSpec,
			OutboxPurgeSpec:  cfg.Scheduler.OutboxPurgeSpec,
			PersistentMaxAge: appConfig.GetDuration(cfg.Cache.PersistentMaxAge, 7*24*time.Hour),
			OutboxRetention:  appConfig.GetDuration(cfg.Scheduler.OutboxRetention, 72*time.Hour),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("初始化定时任务失败")
		}
		sched.Start()
	}

	limiter := ratelimit.NewKeyedLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	go limiter.RunCleanup(ctx, time.Minute)
	ipLimiter := ratelimit.NewKeyedLimiter(cfg.RateLimit.IPRequestsPerMinute, cfg.RateLimit.IPBurst)
	go ipLimiter.RunCleanup(ctx, time.Minute)

	opts := []config.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	}
	var tracerCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		tracer, tc := hertztracing.NewServerTracer()
		opts = append(opts, tracer)
		tracerCfg = tc
	}
	h := server.New(opts...)
	if tracerCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	}
	h.Use(middleware.AccessLog())

	router.RegisterRoutes(h, handler.NewMatchHandler(matchService, logger.Logger),
		middleware.RateLimitByIP(ipLimiter),
		middleware.KeyAuth(cfg.Auth.APIKeys),
		middleware.RateLimit(limiter),
	)

	go func() {
		hlog.Infof("%s HTTP 服务器启动中，监听地址: %s", constants.ServiceName, cfg.Server.Address)
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), appConfig.GetDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancelShutdown()

	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP服务器关闭失败")
	}
	if relay != nil {
		relay.Stop()
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	cancel()
	logger.Info().Msg("优雅退出完成")
}
