package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ckojak/estudobiblico75/internal/config"
	s3infra "github.com/ckojak/estudobiblico75/internal/infra/s3"
	stripeinfra "github.com/ckojak/estudobiblico75/internal/infra/stripe"
	tginfra "github.com/ckojak/estudobiblico75/internal/infra/telegram"
	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
	redrepo "github.com/ckojak/estudobiblico75/internal/repo/redis"
	authsvc "github.com/ckojak/estudobiblico75/internal/services/auth"
	catalogsvc "github.com/ckojak/estudobiblico75/internal/services/catalog"
	checkoutsvc "github.com/ckojak/estudobiblico75/internal/services/checkout"
	downloadsvc "github.com/ckojak/estudobiblico75/internal/services/downloads"
	purchasesvc "github.com/ckojak/estudobiblico75/internal/services/purchases"
	ratesvc "github.com/ckojak/estudobiblico75/internal/services/rate"
	receiptsvc "github.com/ckojak/estudobiblico75/internal/services/receipts"
	salessvc "github.com/ckojak/estudobiblico75/internal/services/sales"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateRepo := redrepo.NewRateRepo(redisClient)

	bookRepo := pgrepo.NewBookRepo(pool)
	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	salesRepo := pgrepo.NewSalesMetricsRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	var gateway checkoutsvc.Gateway
	if g, err := stripeinfra.NewGateway(stripeinfra.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
	}); err != nil {
		log.Warn("stripe init failed, card payments disabled", zap.Error(err))
	} else {
		gateway = g
	}

	catalogService := catalogsvc.NewService(bookRepo)
	catalogService.AttachStorage(catalogsvc.NewS3Storage(s3Client, cfg.S3.EbooksBucket))

	checkoutService := checkoutsvc.NewService(gateway, bookRepo, purchaseRepo, checkoutsvc.Config{
		SuccessURL:      cfg.Stripe.SuccessURL,
		CancelURL:       cfg.Stripe.CancelURL,
		ServiceFeeCents: cfg.Payments.ServiceFeeCents,
	})
	checkoutService.AttachLimiter(ratesvc.NewLimiter(
		rateRepo,
		cfg.Payments.CheckoutsPerMinute,
		cfg.Payments.CheckoutsPer10Sec,
	))

	downloadService := downloadsvc.NewService(bookRepo, purchaseRepo,
		catalogsvc.NewS3Storage(s3Client, cfg.S3.EbooksBucket))

	receiptService := receiptsvc.NewService(bookRepo, purchaseRepo,
		receiptsvc.NewS3Storage(s3Client, cfg.S3.ReceiptsBucket),
		receiptsvc.PixConfig{
			Key:      cfg.Pix.Key,
			Merchant: cfg.Pix.Merchant,
			Payload:  cfg.Pix.Payload,
		},
		cfg.Payments.ServiceFeeCents,
	)
	if bot, err := tginfra.NewBot(cfg.Notify.TelegramToken); err != nil {
		log.Warn("telegram init failed, reviewer notifications disabled", zap.Error(err))
	} else {
		receiptService.AttachNotifier(bot, cfg.Notify.ReviewerChatID)
	}

	purchasesService := purchasesvc.NewService(purchaseRepo, bookRepo)
	salesService := salessvc.NewService(salesRepo)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		JWTManager:       jwtManager,
		CatalogService:   catalogService,
		CheckoutService:  checkoutService,
		DownloadService:  downloadService,
		ReceiptService:   receiptService,
		PurchasesService: purchasesService,
		SalesService:     salesService,
		Logger:           log,
		Config:           cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
