// Package app wires configuration, storage, transport and the delivery
// core into one runnable unit.
package app

import (
	"context"
	"fmt"
	"time"

	"vestbot/internal/botui"
	"vestbot/internal/category"
	"vestbot/internal/config"
	"vestbot/internal/fanout"
	"vestbot/internal/httpapi"
	"vestbot/internal/poller"
	rtsup "vestbot/internal/runtime/supervisor"
	"vestbot/internal/store"
	"vestbot/internal/subscribe"
	kit "vestbot/internal/transport"
	"vestbot/internal/transport/telegram"
	logx "vestbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	adapter    *telegram.Adapter
	store      store.Store
	catalog    *category.Catalog
	engine     *subscribe.Engine
	dispatcher *fanout.Dispatcher
	router     *botui.Router
	http       *httpapi.Server
	poller     *poller.Poller

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	path := cfg.Storage.Path
	if path == "" {
		path = "./vestbot.db"
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	catalog, err := buildCatalog(cfg.Categories)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	engine := subscribe.NewEngine(st, catalog, log.With(logx.String("comp", "subscribe")))

	sendTimeout, err := config.ParseDurationOrDefault("fanout.send_timeout", cfg.Fanout.SendTimeout, 30*time.Second)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	dispatcher := fanout.New(fanout.Config{
		Workers:     cfg.Fanout.Workers,
		RatePerSec:  cfg.Fanout.RatePerSec,
		SendTimeout: sendTimeout,
	}, st, adapter, log.With(logx.String("comp", "fanout")))

	router := botui.New(adapter, engine, catalog, log.With(logx.String("comp", "botui")))

	a := &App{
		cfgm:       cfgm,
		logs:       logSvc,
		log:        log.With(logx.String("comp", "app")),
		adapter:    adapter,
		store:      st,
		catalog:    catalog,
		engine:     engine,
		dispatcher: dispatcher,
		router:     router,
	}

	if cfg.HTTP.Enabled {
		a.http = httpapi.New(httpapi.Config{
			Addr:       cfg.HTTP.Addr,
			AdminToken: cfg.HTTP.AdminToken,
		}, dispatcher, catalog, log.With(logx.String("comp", "http")))
	}

	if cfg.Poller != nil && cfg.Poller.Enabled {
		window, err := config.ParseDurationField("poller.dedup_window", cfg.Poller.DedupWindow)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		p, err := poller.New(poller.Config{
			FeedURL:     cfg.Poller.FeedURL,
			Schedule:    cfg.Poller.Schedule,
			DedupWindow: window,
		}, dispatcher, st, log.With(logx.String("comp", "poller")))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.poller = p
	}

	return a, nil
}

// Dispatcher exposes the delivery entry point (tooling, tests).
func (a *App) Dispatcher() *fanout.Dispatcher { return a.dispatcher }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)

	a.updates = make(chan kit.Update, 256)
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}

	a.sup.Go0("botui.router", func(c context.Context) {
		a.router.Run(c, a.updates)
	})

	// Config hot reload: the watcher self-heals under the supervisor,
	// subscribers apply whatever sections support live changes.
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		rtsup.WithRestartBackoff(250*time.Millisecond, 5*time.Second),
	)
	cfgCh := a.cfgm.Subscribe(1)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(cfgCh)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-cfgCh:
				if !ok || cfg == nil {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
			}
		}
	})

	if a.http != nil {
		a.sup.Go("http.server", a.http.Run)
	}

	if a.poller != nil {
		if err := a.poller.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
	}

	a.log.Info("started", logx.Int("categories", a.catalog.Len()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.poller != nil {
		a.poller.Stop()
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.sup.Wait(wctx)
		cancel()
		if err != nil && err != context.DeadlineExceeded {
			a.log.Warn("shutdown incomplete", logx.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close error", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

func buildCatalog(entries []config.CategoryConfig) (*category.Catalog, error) {
	if len(entries) == 0 {
		return category.Default(), nil
	}
	ce := make([]category.Entry, 0, len(entries))
	for _, e := range entries {
		ce = append(ce, category.Entry{Key: e.Key, Label: e.Label})
	}
	cat, err := category.New(ce)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	return cat, nil
}
