// The api binary serves the staff dashboard API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/httpapi"
	memadminrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/adminrepo"
	memmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/memberrepo"
	memnotifrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/notifrepo"
	postgres "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres"
	pgadminrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/adminrepo"
	pgmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/memberrepo"
	pgnotifrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/notifrepo"
	"github.com/ijara-kitoblar/library-bot/internal/adapters/telegram"
	"github.com/ijara-kitoblar/library-bot/internal/app/authz"
	"github.com/ijara-kitoblar/library-bot/internal/app/notify"
	"github.com/ijara-kitoblar/library-bot/internal/app/registry"
	"github.com/ijara-kitoblar/library-bot/internal/app/subscription"
	platformclock "github.com/ijara-kitoblar/library-bot/internal/platform/clock"
	"github.com/ijara-kitoblar/library-bot/internal/platform/config"
	adminrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/adminrepo"
	memberrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
	notifrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/notifrepo"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := platformclock.NewSystemClock()

	var (
		memberRepo memberrepoport.Repository
		adminRepo  adminrepoport.Repository
		notifRepo  notifrepoport.Repository
		cleanup    func()
	)
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres", "err", err)
			os.Exit(1)
		}
		cleanup = pool.Close
		memberRepo = pgmemberrepo.NewRepo(pool)
		adminRepo = pgadminrepo.NewRepo(pool)
		notifRepo = pgnotifrepo.NewRepo(pool)
	default:
		// Memory storage makes a standalone dev API; it shares nothing with
		// a separately running bot process.
		memberRepo = memmemberrepo.NewRepo()
		adminRepo = memadminrepo.NewRepo()
		notifRepo = memnotifrepo.NewRepo()
	}
	if cleanup != nil {
		defer cleanup()
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Error("telegram", "err", err)
		os.Exit(1)
	}
	out := telegram.NewMessenger(api)

	registrySvc := registry.NewService(memberRepo, clk)
	authzSvc := authz.NewService(adminRepo, memberRepo, out, clk)
	subsSvc := subscription.NewService(memberRepo, subscription.DefaultCatalog(), clk)
	notifySvc := notify.NewService(out, notifRepo, adminRepo, clk, log)

	server := httpapi.NewServer(registrySvc, authzSvc, subsSvc, notifySvc)
	handler := httpapi.NewRouter(server, cfg.APIToken)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
