package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grocery-service/internal/auth"
	"grocery-service/internal/config"
	httpapi "grocery-service/internal/controllers/http"
	"grocery-service/internal/infra"
	"grocery-service/internal/infra/cache"
	"grocery-service/internal/infra/database"
	"grocery-service/internal/infra/kafka"
	"grocery-service/internal/infra/mpesa"
	"grocery-service/internal/infra/rabbitmq"
	"grocery-service/internal/logging"
	"grocery-service/internal/metrics"
	"grocery-service/internal/outbox"
	"grocery-service/internal/repository/gormstore"
	"grocery-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("db: connect: %v", err)
	}

	redisClient := cache.NewClient(cfg.Redis.Addr(), cfg.Redis.DB)
	defer redisClient.Close()

	products := gormstore.NewProductRepository(db)
	carts := gormstore.NewCartRepository(db)
	orders := gormstore.NewOrderRepository(db)
	payments := gormstore.NewPaymentRepository(db)
	events := gormstore.NewOutboxRepository(db)

	catalog := services.NewCatalogReader(products, log.WithField("component", "catalog"))
	catalog.SetCache(cache.NewProductCache(redisClient, cfg.CatalogTTL))
	if cfg.CatalogURL != "" {
		catalog.SetRemote(infra.NewProductClient(cfg.CatalogURL, cfg.CatalogTimeout))
	}

	var gateway mpesa.Gateway
	callbackSecret := cfg.MPesa.CallbackSecret
	switch cfg.MPesa.Mode {
	case "http":
		gateway = mpesa.NewClient(cfg.MPesa.BaseURL, cfg.MPesa.ShortCode, cfg.MPesa.Timeout, cfg.MPesa.MaxRetries)
	default:
		gateway = mpesa.NewSimulatedGateway()
		if callbackSecret == "" {
			callbackSecret, err = mpesa.NewCallbackSecret()
			if err != nil {
				log.Fatalf("callback secret: %v", err)
			}
		}
		log.Warn("using simulated M-Pesa gateway")
	}
	callBudget := cfg.MPesa.CallBudget
	if callBudget <= 0 {
		callBudget = mpesa.CallBudget(cfg.MPesa.Timeout, cfg.MPesa.MaxRetries)
	}

	var sink outbox.Sink
	switch cfg.NotifierSink {
	case "kafka":
		w := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer w.Close()
		sink = outbox.NewKafkaSink(w)
	default:
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, "order.exchange")
		if err != nil {
			log.Fatalf("failed to init publisher: %v", err)
		}
		defer publisher.Close()
		sink = outbox.NewRabbitSink(publisher)
	}

	m := metrics.New()

	cartService := services.NewCartService(carts, orders, catalog, log.WithField("component", "cart"))
	orderService := services.NewOrderService(orders, carts, catalog, log.WithField("component", "orders"), services.OrderConfig{
		DeliveryFee:           cfg.DeliveryFee,
		AllowUnpaidFulfilment: cfg.AllowUnpaidFulfilment,
	})
	paymentService := services.NewPaymentService(payments, orders, gateway, m, log.WithField("component", "payments"), services.PaymentConfig{
		CallbackURL:    cfg.MPesa.CallbackURL,
		CallbackSecret: callbackSecret,
		GatewayTimeout: callBudget,
		PromptWindow:   cfg.PaymentReconcileAfter,
	})
	reconciler := services.NewReconciler(payments, gateway, paymentService, log.WithField("component", "reconciler"),
		cfg.PaymentReconcileAfter, cfg.PaymentReconcileInterval)
	relay := outbox.NewRelay(log.WithField("component", "outbox"), events, sink, m, cfg.OutboxInterval)

	policy, err := auth.NewPolicy()
	if err != nil {
		log.Fatalf("auth policy: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.NewHandler(cartService, orderService, paymentService, catalog, log.WithField("component", "http"), callbackSecret)
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		Verifier:    auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience),
		Policy:      policy,
		Idempotency: cache.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL),
		Metrics:     m,
		Log:         log.WithField("component", "http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		time.Sleep(5 * time.Second)
		catalog.WarmupCache(ctx, []uint64{1, 2})
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Starting grocery service on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
	log.Info("grocery service shutdown")
}
