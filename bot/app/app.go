// Package app wires the crewbot application: configuration, storage,
// dialogue flows, and the Telegram command surface.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/crewbot/bot/auth"
	"github.com/m3rciful/crewbot/bot/blob"
	"github.com/m3rciful/crewbot/bot/courier"
	"github.com/m3rciful/crewbot/bot/dedup"
	"github.com/m3rciful/crewbot/bot/dialogue"
	"github.com/m3rciful/crewbot/bot/repo"
	"github.com/m3rciful/crewbot/bot/sms"
	"github.com/m3rciful/crewbot/core/bootstrap"
	corecmd "github.com/m3rciful/crewbot/core/cmd"
	"github.com/m3rciful/crewbot/core/logger"
	coretelegram "github.com/m3rciful/crewbot/core/telegram"
	"github.com/m3rciful/crewbot/core/telegram/commands"
	"github.com/m3rciful/crewbot/core/telegram/router"
	"log/slog"
)

// App holds the assembled application.
type App struct {
	cfg *Config
	db  *sqlx.DB

	manager     *dialogue.Manager
	authFlow    *auth.Flow
	courierFlow *courier.Flow
	dedup       *dedup.Deduplicator

	identity *repo.IdentityRepo
	menu     *repo.MenuRepo
	orders   *repo.OrderRepo

	sweepStop chan struct{}
}

// Bootstrap initializes infrastructure and assembles the application. The
// carrier must be the *Config produced by LoadConfig.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	blobs, err := blob.NewFileStore(cfg.Blob.Dir)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}

	staffRepo := repo.NewStaffRepo(res.DB)
	identityRepo := repo.NewIdentityRepo(res.DB)
	orderRepo := repo.NewOrderRepo(res.DB)
	menuRepo := repo.NewMenuRepo(res.DB)

	authSvc := auth.NewService(auth.Config{
		SessionTTL:      cfg.AuthTTL(),
		MaxCodeAttempts: cfg.Auth.MaxCodeAttempts,
		ResendWindow:    time.Duration(cfg.Auth.ResendWindowMinutes) * time.Minute,
		SMSCooldown:     time.Duration(cfg.Auth.SMSCooldownMinutes) * time.Minute,
	}, staffRepo, identityRepo, sms.NewTwilioSender(cfg.SMS))

	courierSvc := courier.NewService(cfg.CourierTTL(), orderRepo, blobs)

	authFlow := auth.NewFlow(authSvc)
	courierFlow := courier.NewFlow(courierSvc)

	return &App{
		cfg:         cfg,
		db:          res.DB,
		manager:     dialogue.NewManager(authFlow, courierFlow),
		authFlow:    authFlow,
		courierFlow: courierFlow,
		dedup:       dedup.New(cfg.DedupWindow()),
		identity:    identityRepo,
		menu:        menuRepo,
		orders:      orderRepo,
		sweepStop:   make(chan struct{}),
	}, nil
}

// TelegramRunOptions builds the bot's full routing table.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.startHandler,
		Description: "Greeting and authentication entry",
	})
	reg.RegisterCommand("/auth", commands.Command{
		Handler:     a.authFlow.StartCommand,
		Description: "Link your Telegram to a staff record",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.cancelHandler,
		Description: "Cancel the current dialogue",
	})
	reg.RegisterCommand("/resend_code", commands.Command{
		Handler:     a.authFlow.ResendCommand,
		Description: "Resend the SMS code",
	})
	reg.RegisterCommand("/stock", commands.Command{
		Handler:     a.stockHandler,
		Description: "Supply stock of your unit",
	})
	reg.RegisterCommand("/delivery", commands.Command{
		Handler:     a.deliveryHandler,
		Description: "Your open deliveries",
	})
	reg.RegisterCommand("/flag_order", commands.Command{
		Handler:     a.flagOrderHandler,
		Description: "Ask a courier about a problem order",
		AdminOnly:   true,
		Hidden:      true,
	})

	if err := reg.RegisterCallback(courier.CallbackPhotoYes, a.courierFlow.PhotoYes); err != nil {
		return coretelegram.RunOptions{}, err
	}
	if err := reg.RegisterCallback(courier.CallbackPhotoNo, a.courierFlow.PhotoNo); err != nil {
		return coretelegram.RunOptions{}, err
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
		Gate:    a.manager.GateCommand,
	})
	routes = append(routes, router.TextRoutes(a.manager, reg, router.TextOptions{
		Contact:      a.authFlow.Contact,
		UnknownText:  a.unknownTextHandler,
		UnknownPhoto: a.unknownPhotoHandler,
	})...)

	cbRoute := router.CallbackRoute(reg, router.CallbackOptions{})
	cbRoute.Handler = a.manager.GateCallback()(cbRoute.Handler)
	routes = append(routes, cbRoute)

	routes = append(routes, coretelegram.Route{
		Endpoint: tele.OnAddedToGroup,
		Handler:  a.addedToChatHandler,
	})

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			go a.sweepLoop()
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			close(a.sweepStop)
			a.dedup.Close()
			return a.db.Close()
		},
	}, nil
}

// sweepLoop periodically removes sessions the per-session timers may have
// missed. The sweep age is twice the TTL so it never races a healthy timer.
func (a *App) sweepLoop() {
	interval := time.Duration(a.cfg.Auth.SweepIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.sweepStop:
			return
		case <-ticker.C:
			swept := a.authFlow.Service().CleanupExpired(2 * a.cfg.AuthTTL())
			swept += a.courierFlow.Service().CleanupExpired(2 * a.cfg.CourierTTL())
			if swept > 0 {
				logger.Warn(logger.Background(), "app", "session.sweep",
					slog.Int("count", swept),
				)
			}
		}
	}
}
