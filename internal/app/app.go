// Package app assembles services from configuration for the binaries under
// cmd/.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/ariefcatur/go-qr-orders/internal/config"
	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/ariefcatur/go-qr-orders/internal/gateway"
	"github.com/ariefcatur/go-qr-orders/internal/httpx"
	"github.com/ariefcatur/go-qr-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-qr-orders/internal/kafka"
	"github.com/ariefcatur/go-qr-orders/internal/memstore"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/ariefcatur/go-qr-orders/internal/payments"
	"github.com/ariefcatur/go-qr-orders/internal/postgres"
	"github.com/ariefcatur/go-qr-orders/internal/qr"
	"github.com/ariefcatur/go-qr-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type App struct {
	Config    config.Config
	Inventory *inventory.Service
	Tokens    *qr.Service
	Orders    *orders.Service
	Payments  *payments.Service
	KV        redisx.KV
	// Bus is nil when events are discarded.
	Bus *kafkax.Bus
	// Memory is set for the in-process driver so callers can seed it.
	Memory *memstore.DB

	closers []func()
}

type stores struct {
	ledger   inventory.Ledger
	catalog  inventory.Catalog
	tokens   qr.Store
	orders   orders.Store
	payments payments.Store
}

// New connects to the configured backends and starts the event bus. The
// memory driver keeps stores, cache and events in process.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}
	var (
		st  stores
		pub events.Publisher = events.Discard{}
	)

	switch cfg.StoreDriver {
	case DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, 10)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				a.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		inv := &inventory.Repo{DB: db}
		st = stores{
			ledger:   inv,
			catalog:  inv,
			tokens:   &qr.Repo{DB: db},
			orders:   &orders.Repo{DB: db},
			payments: &payments.Repo{DB: db},
		}

		rdb := redisx.New(cfg.RedisAddr)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.KV = redisx.Store{R: rdb}

		if len(cfg.KafkaBrokers) > 0 {
			a.Bus = kafkax.NewBus(cfg.KafkaBrokers, events.Topics, 1024)
			a.Bus.Start(ctx)
			pub = a.Bus
		}
	case DriverMemory:
		mem := memstore.New()
		a.Memory = mem
		inv := mem.Inventory()
		st = stores{
			ledger:   inv,
			catalog:  inv,
			tokens:   mem.Tokens(),
			orders:   mem.Orders(),
			payments: mem.Payments(),
		}
		a.KV = memstore.NewKV()
		log.Printf("store driver memory: state is lost on exit, events are discarded")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	a.Inventory = &inventory.Service{Ledger: st.ledger, Events: pub, ServiceName: cfg.ServiceName}
	a.Tokens = &qr.Service{Store: st.tokens}
	a.Orders = &orders.Service{
		Store:       st.orders,
		Catalog:     st.catalog,
		Tokens:      a.Tokens,
		Events:      pub,
		Idem:        a.KV,
		ServiceName: cfg.ServiceName,
	}
	a.Payments = &payments.Service{
		Store:       st.payments,
		Orders:      a.Orders,
		Gateway:     gateway.New(gatewayConfig(cfg.Gateway), a.KV),
		Events:      pub,
		Currency:    cfg.Gateway.Currency,
		ServiceName: cfg.ServiceName,
	}
	return a, nil
}

func gatewayConfig(g config.Gateway) gateway.Config {
	return gateway.Config{
		BaseURL:        g.BaseURL,
		ConsumerKey:    g.ConsumerKey,
		ConsumerSecret: g.ConsumerSecret,
		CallbackURL:    g.CallbackURL,
		IPNURL:         g.IPNURL,
		IPNID:          g.IPNID,
		Currency:       g.Currency,
		Country:        g.Country,
		Timeout:        g.Timeout,
		MaxRetries:     g.MaxRetries,
	}
}

// Router mounts every HTTP handler on a rate limited router.
func (a *App) Router() *chi.Mux {
	var rl *httpx.RateLimiter
	if a.Config.RateLimitRPS > 0 {
		rl = httpx.NewRateLimiter(a.Config.RateLimitRPS, a.Config.RateLimitBurst)
		a.closers = append(a.closers, rl.Stop)
	}
	r := httpx.NewRouter(rl)
	(&httpx.OrdersHandler{Orders: a.Orders, Payments: a.Payments}).Register(r)
	(&httpx.PaymentsHandler{
		Payments:    a.Payments,
		FrontendURL: a.Config.FrontendURL,
		Queue:       a.Config.IPNQueue && a.Bus != nil,
	}).Register(r)
	(&httpx.QRHandler{QR: a.Tokens}).Register(r)
	(&httpx.StockHandler{Inventory: a.Inventory}).Register(r)
	return r
}

// Sweeper returns the stale-session sweeper configured for this app.
func (a *App) Sweeper() *payments.Sweeper {
	return &payments.Sweeper{
		Service:  a.Payments,
		Interval: a.Config.SweepInterval,
		MinAge:   a.Config.SweepMinAge,
	}
}

// Close flushes the event bus and releases connections, newest first.
func (a *App) Close() {
	if a.Bus != nil {
		a.Bus.Close() // tutup inbox -> flush & close writer
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
