package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"trade-manager/internal/account"
	"trade-manager/internal/alert"
	"trade-manager/internal/command"
	"trade-manager/internal/config"
	"trade-manager/internal/engine"
	"trade-manager/internal/exchange/connect"
	"trade-manager/internal/logging"
	"trade-manager/internal/notice"
	"trade-manager/internal/store"
	"trade-manager/internal/telegram"
)

func main() {
	var (
		configPath string
		execText   string
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&execText, "exec", "", "run one command, print the report and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	logger, logCloser, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fatal(err.Error())
	}
	defer logCloser.Close()
	log := logging.Component(logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, logger)
	if err != nil {
		fatal(err.Error())
	}
	defer app.close()

	if execText != "" {
		fmt.Print(app.dispatcher.Execute(ctx, execText))
		return
	}
	if !cfg.Telegram.Enabled {
		fatal("telegram.enabled is false; use -exec to run a single command")
	}

	lock, err := store.AcquireLock(cfg.State.Dir, store.LockOptionsFromConfig(cfg.State, "trademanager"))
	if err != nil {
		fatal(err.Error())
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.WithField("event", "lock_release_failed").WithError(err).Warn("release instance lock")
		}
	}()

	log.WithFields(logrus.Fields{
		"event":    "startup",
		"mode":     cfg.Mode,
		"accounts": app.accounts,
		"lock":     lock.Path(),
	}).Info("trade manager started")
	bot := telegram.NewBot(app.tg, app.dispatcher, telegram.BotOptions{
		AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
		PollTimeout:    time.Duration(cfg.Telegram.PollTimeoutSec) * time.Second,
		MaxMessageLen:  cfg.Telegram.MaxMessageLen,
	}, logging.Component(logger, "bot"))
	if err := bot.Run(ctx); err != nil {
		fatal(err.Error())
	}
	log.WithField("event", "shutdown").Info("trade manager stopped")
}

type app struct {
	accounts   int
	dispatcher *command.Dispatcher
	tg         *telegram.Client
	alerts     *alert.Manager
	publisher  *notice.RedisPublisher
}

func newApp(cfg config.Config, logger *logrus.Logger) (*app, error) {
	registry, err := account.NewRegistry(cfg.CoreAccounts())
	if err != nil {
		return nil, err
	}
	a := &app{accounts: registry.Len()}
	if cfg.Telegram.Enabled {
		a.tg = telegram.NewClient(cfg.Telegram.APIBaseURL, cfg.Telegram.BotToken, time.Duration(cfg.Telegram.TimeoutSec)*time.Second)
	}

	var alerter alert.Alerter
	if a.alerts = buildAlertManager(cfg, a.tg, logger); a.alerts != nil {
		alerter = a.alerts
	}
	var publisher notice.Publisher
	if cfg.Notice.Redis.Addr != "" {
		if a.publisher, err = notice.NewRedisPublisher(cfg.Notice); err != nil {
			return nil, err
		}
		publisher = a.publisher
	}

	manager := engine.NewManager(registry, connect.NewFactory(cfg), alerter, logging.Component(logger, "engine"), engine.OptionsFromConfig(cfg))
	a.dispatcher = command.NewDispatcher(manager, publisher, cfg.Location(), logging.Component(logger, "command"))
	return a, nil
}

func (a *app) close() {
	if a.alerts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.alerts.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "close alert manager failed: %v\n", err)
		}
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
}

// buildAlertManager returns nil unless Telegram is enabled with an alert chat.
func buildAlertManager(cfg config.Config, tg *telegram.Client, logger *logrus.Logger) *alert.Manager {
	if tg == nil || cfg.Telegram.AlertChatID == "" {
		return nil
	}
	return alert.NewManager(string(cfg.Mode), telegram.NewNotifier(tg, cfg.Telegram.AlertChatID), logging.Component(logger, "alert"))
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
