// The bot binary runs the Telegram front end, the super-admin bootstrap and
// the subscription expiry monitor.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	memadminrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/adminrepo"
	memlinksession "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/linksession"
	memmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/memberrepo"
	memnotifrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/notifrepo"
	postgres "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres"
	pgadminrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/adminrepo"
	pgmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/memberrepo"
	pgnotifrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/notifrepo"
	redislinksession "github.com/ijara-kitoblar/library-bot/internal/adapters/redis/linksession"
	"github.com/ijara-kitoblar/library-bot/internal/adapters/telegram"
	"github.com/ijara-kitoblar/library-bot/internal/app/authz"
	"github.com/ijara-kitoblar/library-bot/internal/app/linking"
	"github.com/ijara-kitoblar/library-bot/internal/app/monitor"
	"github.com/ijara-kitoblar/library-bot/internal/app/notify"
	"github.com/ijara-kitoblar/library-bot/internal/app/registry"
	"github.com/ijara-kitoblar/library-bot/internal/app/subscription"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	platformclock "github.com/ijara-kitoblar/library-bot/internal/platform/clock"
	"github.com/ijara-kitoblar/library-bot/internal/platform/config"
	adminrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/adminrepo"
	linksessionport "github.com/ijara-kitoblar/library-bot/internal/ports/out/linksession"
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
		memberRepo = memmemberrepo.NewRepo()
		adminRepo = memadminrepo.NewRepo()
		notifRepo = memnotifrepo.NewRepo()
	}
	if cleanup != nil {
		defer cleanup()
	}

	var sessions linksessionport.Store
	switch cfg.SessionBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = rdb.Close() }()
		sessions = redislinksession.NewStore(rdb)
	default:
		sessions = memlinksession.NewStore(clk)
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Error("telegram", "err", err)
		os.Exit(1)
	}

	out := telegram.NewMessenger(api)
	registrySvc := registry.NewService(memberRepo, clk)
	linkingSvc := linking.NewService(memberRepo, sessions, clk)
	authzSvc := authz.NewService(adminRepo, memberRepo, out, clk)
	subsSvc := subscription.NewService(memberRepo, subscription.DefaultCatalog(), clk)
	notifySvc := notify.NewService(out, notifRepo, adminRepo, clk, log)

	if _, err := authzSvc.Bootstrap(ctx, authz.BootstrapInput{
		Account:     domain.ExternalAccountID(cfg.SuperAdminAccount),
		Phone:       cfg.SuperAdminPhone,
		GivenName:   cfg.SuperAdminGivenName,
		FamilyName:  cfg.SuperAdminFamilyName,
		BirthYear:   cfg.SuperAdminBirthYear,
		Affiliation: cfg.SuperAdminAffiliation,
	}); err != nil {
		log.Error("super admin bootstrap", "err", err)
		os.Exit(1)
	}

	monitorSvc := monitor.NewService(subsSvc, notifySvc, clk, log)
	monitorSvc.WarningDays = cfg.WarningDays
	monitorSvc.WarningInterval = cfg.WarningInterval
	monitorSvc.SweepInterval = cfg.SweepInterval

	bot := telegram.NewBot(api, log, registrySvc, linkingSvc, authzSvc, subsSvc, notifySvc)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitorSvc.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		bot.Run(ctx)
	}()

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
}
