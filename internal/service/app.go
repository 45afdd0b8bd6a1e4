package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bizbook/core/internal/cache"
	"bizbook/core/internal/config"
	"bizbook/core/internal/derive"
	"bizbook/core/internal/domain"
	"bizbook/core/internal/gateway"
	"bizbook/core/internal/gesture"
	"bizbook/core/internal/logging"
	"bizbook/core/internal/metrics"
	"bizbook/core/internal/picker"
)

// OpenGateway builds the shared gateway client from configuration. Picker
// pages are cached in Redis when REDIS_ADDR answers, in process memory
// otherwise. The returned closer releases the cache connection.
func OpenGateway(ctx context.Context, cfg config.Config, session gateway.SessionStore, logger *logrus.Logger, m *metrics.Metrics) (*gateway.Client, func() error) {
	logger = logging.OrDiscard(logger)
	pages := cache.PageCache(cache.NewMemoryPageCache())
	closer := func() error { return nil }

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisPageCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-memory page cache")
			_ = redisCache.Close()
		} else {
			pages = redisCache
			closer = redisCache.Close
			logger.Info("page cache: redis")
		}
	}

	client := gateway.New(gateway.Options{
		BaseURL:      cfg.GatewayBaseURL,
		Timeout:      cfg.GatewayTimeout,
		RatePerSec:   cfg.GatewayRatePerSec,
		Burst:        cfg.GatewayBurst,
		Session:      session,
		Logger:       logger,
		Metrics:      m,
		PageCache:    pages,
		PageCacheTTL: cfg.PageCacheTTL,
	})
	return client, closer
}

// App holds one screen per entity kind over a shared gateway client.
type App struct {
	gw      *gateway.Client
	deps    Deps
	pickers []picker.Option

	Clients   *Screen[domain.Client, domain.NewClient]
	Products  *Screen[domain.Product, domain.NewProduct]
	Purchases *Screen[domain.Purchase, domain.NewTransaction]
	Sales     *Screen[domain.Sale, domain.NewTransaction]
	Accounts  *Screen[domain.Account, domain.NewAccount]
}

func NewApp(cfg config.Config, gw *gateway.Client, logger *logrus.Logger, m *metrics.Metrics) *App {
	deps := Deps{
		Logger:    logger,
		Metrics:   m,
		Validator: derive.NewValidator(),
		Thresholds: gesture.Thresholds{
			Jitter:         cfg.JitterThreshold,
			Reveal:         cfg.RevealThreshold,
			RevealedOffset: cfg.RevealOffset,
		},
	}.withDefaults()

	return &App{
		gw:   gw,
		deps: deps,
		pickers: []picker.Option{
			picker.WithPageSize(cfg.PageSize),
			picker.WithDebounce(cfg.SearchDebounce),
			picker.WithLogger(deps.Logger),
			picker.WithMetrics(m),
		},
		Clients:   NewScreen[domain.Client, domain.NewClient](gateway.Clients(gw), deps),
		Products:  NewScreen[domain.Product, domain.NewProduct](gateway.Products(gw), deps),
		Purchases: NewScreen[domain.Purchase, domain.NewTransaction](gateway.Purchases(gw), deps),
		Sales:     NewScreen[domain.Sale, domain.NewTransaction](gateway.Sales(gw), deps),
		Accounts:  NewScreen[domain.Account, domain.NewAccount](gateway.Accounts(gw), deps),
	}
}

func (a *App) Validator() *derive.Validator {
	return a.deps.Validator
}

// Pickers are per form; each call returns a fresh one.

func (a *App) ProductPicker(opts ...picker.Option) *picker.Picker[domain.Product] {
	return picker.New[domain.Product](gateway.Products(a.gw), append(a.pickerOptions(), opts...)...)
}

func (a *App) ClientPicker(opts ...picker.Option) *picker.Picker[domain.Client] {
	return picker.New[domain.Client](gateway.Clients(a.gw), append(a.pickerOptions(), opts...)...)
}

func (a *App) TransferAccountPicker(opts ...picker.Option) *picker.Picker[domain.Account] {
	return picker.TransferAccounts(gateway.Accounts(a.gw), append(a.pickerOptions(), opts...)...)
}

func (a *App) NewPurchaseForm() *TransactionForm {
	return NewPurchaseForm(a.deps.Validator)
}

func (a *App) NewSaleForm() *TransactionForm {
	return NewSaleForm(a.deps.Validator)
}

// BlurAll clears every screen, as on sign-out.
func (a *App) BlurAll() {
	a.Clients.Blur()
	a.Products.Blur()
	a.Purchases.Blur()
	a.Sales.Blur()
	a.Accounts.Blur()
}

func (a *App) pickerOptions() []picker.Option {
	return append([]picker.Option(nil), a.pickers...)
}
