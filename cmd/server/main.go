package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"seckill/internal/cache"
	"seckill/internal/config"
	"seckill/internal/database"
	"seckill/internal/job"
	"seckill/internal/queue"
	"seckill/internal/router"
	"seckill/internal/service"
	"seckill/pkg/logger"
	rediskey "seckill/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	lg := logger.WithModule("main")

	// 1. 连接数据库，自动建表
	db, err := database.Open(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		lg.Fatal("db open", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		lg.Fatal("db migrate", zap.Error(err))
	}

	// 2. Redis
	rdb := rd.NewClient(&rd.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		lg.Fatal("redis ping", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancelPing()

	// 3. 缓存与重建线程池
	scheduler := cache.NewScheduler(cfg.Cache.RebuildWorkers, cfg.Cache.RebuildQueue)
	cacheClient := cache.NewClient(rdb, scheduler,
		cache.WithNullTTL(cfg.Cache.NullTTL),
		cache.WithLockTTL(cfg.Cache.LockTTL),
		cache.WithMutexRetry(cfg.Cache.MutexRetries, cfg.Cache.MutexInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. 订单事件：outbox -> relay -> kafka -> 缓存失效
	var (
		publisher service.OrderEventPublisher
		producer  *queue.Producer
		consumer  *queue.Consumer
	)
	if cfg.Kafka.Enabled {
		producer = queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		consumer = queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, cacheClient)
		publisher = queue.NewOutbox(rdb, cfg.Kafka.Stream)
		relay := queue.NewRelay(rdb, producer, cfg.Kafka.Stream, cfg.Kafka.Group, cfg.Kafka.Consumer)
		go relay.Run(ctx)
		go consumer.Run(ctx)
		lg.Info("order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// 5. 业务服务
	strategy, err := service.ParseShopStrategy(cfg.Cache.ShopStrategy)
	if err != nil {
		lg.Fatal("shop cache strategy", zap.Error(err))
	}
	shops := service.NewShopService(db, cacheClient, strategy, cfg.Cache.ShopTTL, cfg.Cache.LogicalTTL)
	vouchers := service.NewVoucherService(db, cacheClient, cfg.Cache.ShopTTL)
	orders := service.NewVoucherOrderService(db, rdb, rediskey.NewIDWorker(rdb), publisher, cfg.Seckill.OrderLockTTL)
	users := service.NewUserService(db, rdb, cfg.Login.CodeTTL, cfg.Login.TokenTTL)

	// 6. 热点店铺预热，只有逻辑过期策略需要
	var warmIDs []uint
	if strategy == service.ShopLogicalExpire {
		warmIDs = cfg.Warmup.ShopIDs
	}
	warmer := job.NewWarmer(shops, warmIDs, cfg.Cache.LogicalTTL, cfg.Warmup.Schedule)
	if err := warmer.RunOnce(ctx); err != nil {
		lg.Warn("initial warm up", zap.Error(err))
	}
	if err := warmer.Start(); err != nil {
		lg.Fatal("start warmer", zap.Error(err))
	}
	lg.Info("shop cache strategy", zap.String("strategy", string(strategy)), zap.Int("warm_shops", len(warmIDs)))

	// 7. HTTP
	r := gin.New()
	r.Use(gin.Recovery())
	if err := router.Setup(r, router.Deps{
		Shops:    shops,
		Vouchers: vouchers,
		Orders:   orders,
		Users:    users,
		RDB:      rdb,
		Config:   cfg,
	}); err != nil {
		lg.Fatal("setup router", zap.Error(err))
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs error
	errs = multierr.Append(errs, srv.Shutdown(shutdownCtx))
	warmer.Stop()
	scheduler.Close()
	if consumer != nil {
		errs = multierr.Append(errs, consumer.Close())
	}
	if producer != nil {
		errs = multierr.Append(errs, producer.Close())
	}
	errs = multierr.Append(errs, rdb.Close())
	if sqlDB, err := db.DB(); err == nil {
		errs = multierr.Append(errs, sqlDB.Close())
	}
	if errs != nil {
		lg.Warn("shutdown finished with errors", zap.Error(errs))
	}
}
