package main

import (
	"context"
	"fmt"

	"prep/internal/config"
	"prep/internal/db"
	"prep/internal/interview"
	"prep/internal/reminders"
	"prep/internal/results"
	"prep/internal/store"

	"github.com/sirupsen/logrus"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg    config.Config
	log    *logrus.Logger
	store  interview.Store
	cache  results.Cache
	closer []func() error
}

func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}

func openApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	switch cfg.StoreDriver {
	case config.StorePostgres:
		gdb, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, func() error { return db.Close(gdb) })
		if err := db.AutoMigrateAndIndexes(gdb); err != nil {
			a.Close()
			return nil, err
		}
		a.store = store.NewPostgres(gdb)
	case config.StoreMongo:
		client, err := store.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, func() error { return client.Disconnect(context.Background()) })
		ms := store.NewMongo(client.Database(cfg.MongoDatabase))
		if err := ms.EnsureIndexes(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.store = ms
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on exit")
		a.store = store.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	switch cfg.CacheBackend {
	case config.CacheRedis:
		rc, err := results.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			// reads fall through to the durable store
			log.WithError(err).Warn("redis unreachable at startup")
		}
		a.closer = append(a.closer, rc.Close)
		a.cache = rc
	default:
		a.cache = results.NewMemoryCache()
	}

	return a, nil
}

func (a *app) emailSink() reminders.EmailSink {
	if a.cfg.SMTPHost == "" {
		return reminders.LogSender{Log: a.log}
	}
	return reminders.NewSMTPSender(a.cfg.SMTPHost, a.cfg.SMTPPort, a.cfg.SMTPUser, a.cfg.SMTPPassword, a.cfg.SMTPFrom)
}

func (a *app) scheduler(sink *reminders.NotificationSink, ledger *reminders.Ledger) *reminders.Scheduler {
	return &reminders.Scheduler{
		Store:         a.store,
		Email:         a.emailSink(),
		Notifications: sink,
		Ledger:        ledger,
		Windows:       a.cfg.Windows,
		Location:      a.cfg.Location,
		Interval:      a.cfg.ReminderTick,
		Log:           a.log.WithField("component", "reminders"),
	}
}
