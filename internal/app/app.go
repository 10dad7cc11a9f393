// Package app wires the API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/auth"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/order"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
	"github.com/shoaibmehmood243/lensciaga/internal/events"
	"github.com/shoaibmehmood243/lensciaga/internal/handler"
	"github.com/shoaibmehmood243/lensciaga/internal/idempotency"
	"github.com/shoaibmehmood243/lensciaga/internal/notify"
	"github.com/shoaibmehmood243/lensciaga/internal/storage/postgres"
	"github.com/shoaibmehmood243/lensciaga/pkg/health"
	"github.com/shoaibmehmood243/lensciaga/pkg/httpmiddleware"
)

const serviceName = "lensciaga-api"

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.TelemetryProvider, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	registry := health.New()
	registry.Add(health.Check{Name: "postgres", Kind: health.Readiness, Timeout: 5 * time.Second, Func: health.Ping(pool)})
	registry.Add(health.Check{Name: "goroutines", Kind: health.Liveness, Func: health.Goroutines(10000)})

	// Stores.
	productRepo := postgres.NewProductRepository(pool)
	promoRepo := postgres.NewPromoRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	adminRepo := postgres.NewAdminRepository(pool)
	outboxStore := postgres.NewOutboxStore(pool)
	registry.Add(health.Check{
		Name:    "outbox",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.Backlog(outboxStore.Pending, cfg.Outbox.BacklogLimit),
	})

	// Notifications.
	templates, err := notify.NewTemplates()
	if err != nil {
		return errors.Wrap(err, "parse templates")
	}
	sender, err := newSender(lg, cfg.Mail)
	if err != nil {
		return err
	}
	var publisher notify.Publisher
	if brokers := events.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		pub, err := events.NewPublisher(brokers, cfg.Kafka.Topic)
		if err != nil {
			return errors.Wrap(err, "create kafka publisher")
		}
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		publisher = pub
		lg.Info("Publishing order events", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	relay, err := notify.NewRelay(outboxStore, sender, publisher, notify.RelayConfig{
		PollInterval:  cfg.Outbox.PollInterval,
		BatchSize:     cfg.Outbox.BatchSize,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
		SendTimeout:   cfg.Mail.Timeout,
		RatePerSecond: cfg.Mail.RatePerSecond,
	}, lg.Named("relay"), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create relay")
	}

	// Idempotent checkout.
	var idem handler.Idempotency
	if cfg.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		defer func() { _ = client.Close() }()

		store := idempotency.NewStore(client, "lens", 24*time.Hour)
		registry.Add(health.Check{Name: "redis", Kind: health.Readiness, Func: health.Ping(store)})
		idem = store
	}

	// Domain services.
	authSvc, err := auth.NewService(adminRepo, auth.Config{
		Secret: []byte(cfg.Auth.JWTSecret),
		TTL:    cfg.Auth.TokenTTL,
	})
	if err != nil {
		return errors.Wrap(err, "create auth service")
	}
	orderSvc := order.NewService(
		postgres.NewUnitOfWork(pool),
		productRepo,
		orderRepo,
		postgres.NewOutbox(pool),
		templates,
		order.Config{
			OperatorAddress: cfg.Mail.OperatorAddress,
			QueryTimeout:    cfg.Database.QueryTimeout,
			PublishEvents:   publisher != nil,
		},
	)

	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL, AllowRegister: cfg.Auth.AllowRegister},
		product.NewService(productRepo),
		promo.NewService(promoRepo),
		orderSvc,
		authSvc,
		idem,
	)

	router := chi.NewRouter()
	router.Get("/livez", registry.Livez)
	router.Get("/readyz", registry.Readyz)
	h.Mount(router)

	routeFinder := httpmiddleware.MakeRouteFinder(router)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recover(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      cfg.CORS.MaxAge,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registry.Run(gctx, 10*time.Second)
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		registry.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	registry.SetReady(true)

	return g.Wait()
}

func newSender(lg *zap.Logger, cfg MailConfig) (notify.Sender, error) {
	if cfg.Host == "" {
		lg.Warn("SMTP host not configured, mails are logged and dropped")
		return notify.LogSender{Log: func(msg notify.Message) {
			lg.Info("Mail dropped", zap.String("to", msg.To), zap.String("subject", msg.Subject))
		}}, nil
	}
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create smtp sender")
	}
	return sender, nil
}
