package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"marketplace/internal/config"
	"marketplace/internal/infra/db"
	"marketplace/internal/infra/events"
	"marketplace/internal/infra/lock"
	"marketplace/internal/infra/memory"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/logger"
	"marketplace/internal/metrics"
	repo "marketplace/internal/repository"
	"marketplace/internal/server"
	"marketplace/internal/usecase"
)

// usecaseに渡す永続化の部品
type stores struct {
	tx         repo.TransactionManager
	products   repo.ProductRepository
	inventory  repo.InventoryRepository
	discounts  repo.DiscountCodeRepository
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	auditLogs  repo.AuditLogRepository
}

func openStores(cfg config.Config, log logrus.FieldLogger) (stores, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		s := memory.NewStore()
		return stores{
			tx:         s,
			products:   s.Products(),
			inventory:  s.Inventory(),
			discounts:  s.DiscountCodes(),
			orders:     s.Orders(),
			orderItems: s.OrderItems(),
			auditLogs:  s.AuditLogs(),
		}, func() {}, nil
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return stores{}, nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return stores{}, nil, err
	}
	closeDB := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	//Repository（GORM実装）生成
	return stores{
		tx:         infraRepo.NewTxManagerGorm(gormDB),
		products:   infraRepo.NewProductGormRepository(gormDB),
		inventory:  infraRepo.NewInventoryGormRepository(gormDB),
		discounts:  infraRepo.NewDiscountCodeGormRepository(gormDB),
		orders:     infraRepo.NewOrderGormRepository(gormDB),
		orderItems: infraRepo.NewOrderItemGormRepository(gormDB),
		auditLogs:  infraRepo.NewAuditLogGormRepository(gormDB),
	}, closeDB, nil
}

// REDIS_ADDRESSがなければロックなし
func openLocker(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (lock.Locker, func()) {
	if cfg.RedisAddress == "" {
		return lock.NoopLocker{}, func() {}
	}
	rdb, err := lock.ConnectRedis(ctx, cfg.RedisAddress)
	if err != nil {
		log.WithError(err).Warn("redis unavailable; checkout lock disabled")
		return lock.NoopLocker{}, func() {}
	}
	return lock.NewRedisLocker(rdb), func() { _ = rdb.Close() }
}

// KAFKA_BROKERSがなければイベントは捨てる
func openPublisher(cfg config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NoopPublisher{}
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStores, err := openStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer closeStores()

	locker, closeLocker := openLocker(ctx, cfg, log)
	defer closeLocker()

	publisher := openPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("close publisher")
		}
	}()

	m := metrics.NewRegistry()

	//Usecase生成
	pricer := usecase.NewPricingUsecase(st.products, st.discounts, cfg.Pricing, m, log)
	deps := server.Deps{
		Config:      cfg,
		Log:         log,
		Metrics:     m,
		Products:    usecase.NewProductUsecase(st.tx, st.products, publisher, m, log),
		Pricing:     pricer,
		Orders:      usecase.NewOrderUsecase(st.tx, st.orders, st.orderItems, pricer, locker, publisher, m, log),
		Inventory:   usecase.NewInventoryUsecase(st.tx, st.products, st.inventory, publisher, m, log),
		Discounts:   usecase.NewDiscountUsecase(st.tx, st.discounts, log),
		AdminOrders: usecase.NewAdminOrderUsecase(st.tx, st.orders, st.orderItems, publisher, m, log),
		AuditLogs:   usecase.NewAuditLogUsecase(st.auditLogs, log),
	}

	//Server起動
	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{"addr": addr, "store": cfg.StoreDriver}).Info("starting server")
	if err := server.Start(ctx, server.New(deps), addr, 10*time.Second); err != nil {
		log.WithError(err).Error("server stopped")
		return
	}
	log.Info("server stopped")
}
