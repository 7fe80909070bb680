// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sms-hunter/internal/application"
	"sms-hunter/internal/config"
	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/infra/adapters/smsman"
	tele "sms-hunter/internal/infra/adapters/telegram"
	httpapi "sms-hunter/internal/infra/http"
	"sms-hunter/internal/infra/i18n"
	"sms-hunter/internal/infra/logging"
	"sms-hunter/internal/infra/metrics"
	red "sms-hunter/internal/infra/redis"
	"sms-hunter/internal/infra/store"
	"sms-hunter/internal/infra/web"
	"sms-hunter/internal/infra/worker"
	"sms-hunter/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logging & metrics ----
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().
		Str("version", version).
		Str("mode", cfg.Bot.Mode).
		Str("store", cfg.Store.Backend).
		Str("bot_token", logging.Redact(cfg.Bot.Token, cfg.Runtime.Dev)).
		Msg("starting sms-hunter")

	// ---- Status store ----
	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("status store")
	}
	defer backend.Close()
	statusStore := usecase.NewStatusStore(backend.Repo, logger)

	// ---- i18n ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("locales")
	}

	// ---- Telegram ----
	var (
		bot     adapter.TelegramBotAdapter
		updates httpapi.UpdateHandler
		realBot *tele.RealTelegramBotAdapter
	)
	if cfg.Bot.Mode == config.ModeNoop {
		noop := tele.NewNoopBotAdapter(logger)
		bot, updates = noop, noop
	} else {
		realBot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, tr, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		bot, updates = realBot, realBot
	}

	// ---- Upstream ----
	provider := smsman.Factory(
		smsman.WithBaseURL(cfg.Upstream.BaseURL),
		smsman.WithTimeout(cfg.Upstream.Timeout),
		smsman.WithLogger(logging.Component(logger, "SMSMan")),
	)

	// ---- Redis extras (lease + code poll limiter) ----
	hunterOpts := []usecase.HunterOption{usecase.WithNotice(usecase.NewReservationNotice(tr))}
	var limiter adapter.Limiter
	if backend.Redis != nil {
		hunterOpts = append(hunterOpts, usecase.WithLocker(red.NewLocker(backend.Redis)))
		limiter = red.NewRateLimiter(backend.Redis)
	}

	// ---- Hunter ----
	hunter := usecase.NewHunter(ctx, usecase.HunterConfig{
		Service:        cfg.Upstream.Service,
		NotifyChatID:   cfg.Bot.NotifyChatID,
		PassDelay:      cfg.Hunter.PassDelay,
		FailureBackoff: cfg.Hunter.FailureBackoff,
		ErrorCooldown:  cfg.Hunter.ErrorCooldown,
		SendDelay:      cfg.Hunter.SendDelay,
		LockKey:        cfg.Hunter.LockKey,
		LockTTL:        cfg.Hunter.LockTTL,
	}, statusStore, provider, bot, logger, hunterOpts...)

	// ---- Use cases & facade ----
	adminUC := usecase.NewAdminUseCase(statusStore, hunter, logger)
	numberUC := usecase.NewNumberUseCase(statusStore, provider, limiter, usecase.PollLimit{
		Limit:  cfg.Hunter.CodePollLimit,
		Window: cfg.Hunter.CodePollWindow,
	}, logger)
	facade := application.NewBotFacade(adminUC, numberUC, hunter, cfg.Bot.AdminID, cfg.Bot.NotifyChatID)
	if realBot != nil {
		realBot.SetFacade(facade)
	}

	// ---- Resume a loop that was on before restart ----
	if hunter.Resume(ctx) {
		logger.Info().Msg("hunter resumed from stored status")
	}

	// ---- HTTP server ----
	pool := worker.NewPool(cfg.Bot.Workers, logger)
	pool.Start(ctx)
	srv := httpapi.NewServer(cfg, updates, pool, logger)
	if cfg.Admin.APIKey != "" {
		api := web.NewServer(facade, web.NewAuthManager(cfg.Admin), logger)
		srv.Mount("/api/v1", api.Routes())
		logger.Info().Msg("admin API enabled at /api/v1")
	}
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Telegram updates ----
	switch cfg.Bot.Mode {
	case config.ModePolling:
		if err := realBot.DeleteWebhook(ctx); err != nil {
			logger.Warn().Err(err).Msg("delete webhook failed")
		}
		go func() {
			if err := realBot.StartPolling(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	case config.ModeWebhook:
		// /set_webhook can retry this by hand.
		if err := realBot.SetWebhook(ctx, srv.WebhookURL()); err != nil {
			logger.Error().Err(err).Msg("webhook setup failed")
		} else {
			logger.Info().Str("secret", logging.Redact(cfg.Bot.WebhookSecret, cfg.Runtime.Dev)).Msg("webhook mode")
		}
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		logger.Info().Str("signal", s.String()).Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if realBot != nil {
		realBot.StopPolling()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	hunterDone := make(chan struct{})
	go func() {
		hunter.Wait()
		close(hunterDone)
	}()
	select {
	case <-hunterDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("hunter did not stop in time")
	}
	pool.Stop()
	logger.Info().Msg("bye")
}
