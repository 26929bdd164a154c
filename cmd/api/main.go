package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"storefront/internal/config"
	"storefront/internal/domain/money"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/server"
	"storefront/internal/usecase"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now().UTC()
}

func main() {
	//設定（.env は無くてもよい）
	cfg, err := config.Load(".env", "../.env")
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		log.Error(ctx, "db.connect_failed", err)
		os.Exit(1)
	}
	if cfg.DB.AutoMigrate {
		if err := db.Migrate(ctx, gormDB); err != nil {
			log.Error(ctx, "db.migrate_failed", err)
			os.Exit(1)
		}
	}

	//metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shopMetrics := metrics.New(reg)

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}
	policy := money.PricingPolicy{
		TaxRate:               cfg.Pricing.TaxRate,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		FlatShippingFee:       cfg.Pricing.FlatShippingFee,
	}

	//Usecase生成
	catalogUC := usecase.NewCatalogUsecase(productRepo, categoryRepo, txManager, idGen, clock)
	cartUC := usecase.NewCartUsecase(txManager, policy)
	checkoutUC := usecase.NewCheckoutUsecase(txManager, policy, usecase.CheckoutConfig{
		OrderNumberPrefix: cfg.OrderNumber.Prefix,
		MaxAttempts:       cfg.OrderNumber.MaxAttempts,
	}, idGen, clock, log, shopMetrics)
	orderUC := usecase.NewOrderUsecase(txManager)
	lifecycleUC := usecase.NewOrderLifecycleUsecase(txManager, clock, log, shopMetrics)
	auditUC := usecase.NewAuditLogUsecase(txManager)

	//Handler生成
	handlers := server.Handlers{
		Catalog:      handler.NewCatalogHandler(catalogUC),
		Cart:         handler.NewCartHandler(cartUC),
		Checkout:     handler.NewCheckoutHandler(checkoutUC),
		Orders:       handler.NewOrderHandler(orderUC),
		AdminOrders:  handler.NewAdminOrderHandler(orderUC, lifecycleUC),
		AdminCatalog: handler.NewAdminProductHandler(catalogUC),
		AdminAudit:   handler.NewAdminAuditLogHandler(auditUC),
	}

	//Server起動
	e := server.New(cfg, log)
	server.RegisterRoutes(e, cfg, gormDB, reg, userRepo, handlers)

	if err := server.Start(ctx, e, cfg.App.Addr(), log); err != nil {
		log.Error(ctx, "server.failed", err)
		os.Exit(1)
	}
}
