// Command saborposd runs the restaurant POS transactional core: it loads
// configuration, opens the database pool, wires every bounded context, and
// serves the REST API until signalled to stop.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tolvera-hq/saborpos/internal/billing"
	"github.com/tolvera-hq/saborpos/internal/cashregister"
	"github.com/tolvera-hq/saborpos/internal/catalog"
	"github.com/tolvera-hq/saborpos/internal/customer"
	"github.com/tolvera-hq/saborpos/internal/diningroom"
	"github.com/tolvera-hq/saborpos/internal/eventbus"
	"github.com/tolvera-hq/saborpos/internal/httpapi"
	"github.com/tolvera-hq/saborpos/internal/kitchen"
	"github.com/tolvera-hq/saborpos/internal/orders"
	"github.com/tolvera-hq/saborpos/internal/platform/authn"
	"github.com/tolvera-hq/saborpos/internal/platform/config"
	"github.com/tolvera-hq/saborpos/internal/platform/dbx"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/terminal"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, overrides defaults)")
	flag.Parse()

	log := logging.New(logging.DefaultConfig())
	logging.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load configuration", "error", err)
	}
	log.SetLevel(logging.ParseLevel(cfg.Logging.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := dbx.Open(ctx, dbx.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		EnableRLS:       cfg.Database.EnableRLS,
	})
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	bus := eventbus.New(4, 3, 200*time.Millisecond)
	defer bus.Close()

	catalogRepo := catalog.NewPostgresRepository(db.Pool())
	diningSvc := diningroom.NewService(db)
	ordersSvc := orders.NewService(db, catalogRepo, diningSvc, bus)
	mockTerminal := terminal.NewMock()
	billingSvc := billing.NewService(db, diningSvc, mockTerminal, bus)
	cashSvc := cashregister.NewService(db, bus)
	kitchenSvc := kitchen.NewService(db, bus)
	customerSvc := customer.NewService(db.Pool())

	issuer := authn.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	authSvc := httpapi.NewAuthService(db.Pool(), issuer)

	server := &httpapi.Server{
		Orders:                 ordersSvc,
		Billing:                billingSvc,
		CashRegister:           cashSvc,
		Kitchen:                kitchenSvc,
		DiningRoom:             diningSvc,
		Customer:               customerSvc,
		Auth:                   authSvc,
		Issuer:                 issuer,
		DevTenantHeaderAllowed: !cfg.Auth.DevTenantHeaderOff,
		AllowedOrigins:         cfg.HTTP.AllowedOrigins,
		RateRPS:                cfg.RateLimit.RequestsPerSecond,
		RateBurst:              cfg.RateLimit.Burst,
		Log:                    log.Component("httpapi"),
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	sched := cron.New(cron.WithSeconds())
	if _, err := sched.AddFunc(cfg.Kitchen.DispatchSweepCron, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, cfg.Kitchen.PrinterTimeout)
		defer cancel()
		if err := kitchenSvc.Sweep(sweepCtx); err != nil {
			log.Error("kitchen dispatch sweep failed", "error", err)
		}
	}); err != nil {
		log.Fatal("failed to schedule kitchen dispatch sweep", "error", err)
	}
	if _, err := sched.AddFunc(cfg.CashRegister.DayClosingCron, func() {
		closingCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := cashSvc.RunDayClosings(closingCtx, time.Now()); err != nil {
			log.Error("day closing sweep failed", "error", err)
		}
	}); err != nil {
		log.Fatal("failed to schedule day closing sweep", "error", err)
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		log.Info("listening", "addr", cfg.HTTP.Addr, "profile", cfg.Profile)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server stopped unexpectedly", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
