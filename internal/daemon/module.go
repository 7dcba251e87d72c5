// Package daemon is the composition root: it constructs every
// component explicitly and wires them through fx, so nothing relies on
// global lookup and tests can assemble the same graph with fakes.
package daemon

import (
	"context"

	"github.com/pedrozc90/wabridge/internal/archive"
	"github.com/pedrozc90/wabridge/internal/bridge"
	"github.com/pedrozc90/wabridge/internal/bus"
	"github.com/pedrozc90/wabridge/internal/client"
	"github.com/pedrozc90/wabridge/internal/config"
	"github.com/pedrozc90/wabridge/internal/lock"
	"github.com/pedrozc90/wabridge/internal/logging"
	"github.com/pedrozc90/wabridge/internal/rules"
	"github.com/pedrozc90/wabridge/internal/session"
	"github.com/pedrozc90/wabridge/internal/status"
	"github.com/pedrozc90/wabridge/internal/store"
	"github.com/pedrozc90/wabridge/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	AutoConnect bool
}

// Module returns the fx module for the bridge daemon, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideArchiveDB,
			provideRuleStore,
			provideClient,
			provideEngine,
			provideArchiver,
			provideBridge,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig() *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		// Missing config is fine; defaults apply.
		return &config.Config{}
	}
	return cfg
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideArchiveDB(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.ArchiveDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRuleStore(p Params, cfg *config.Config, logger *zap.Logger) *rules.Store {
	path := cfg.RulesFile
	if path == "" {
		path = session.RulesPath(p.SessionName)
	}
	return rules.NewStore(path, cfg.Admin(), logger)
}

func provideClient(p Params, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *client.Client {
	factory := func(ctx context.Context) (wa.Transport, error) {
		return wa.NewAdapter(ctx, session.CredentialsDBPath(p.SessionName), logger)
	}
	return client.New(machine, b, factory, logger)
}

func provideEngine(p Params, ruleStore *rules.Store, c *client.Client, logger *zap.Logger) *rules.Engine {
	return rules.NewEngine(ruleStore, c, session.AutomationLogDir(p.SessionName), logger)
}

func provideArchiver(db *store.DB, b *bus.Bus, logger *zap.Logger) *archive.Archiver {
	return archive.New(db, b, logger)
}

func provideBridge(c *client.Client, ruleStore *rules.Store, b *bus.Bus) *bridge.Bridge {
	return bridge.New(c, ruleStore, b)
}

func registerLifecycle(lc fx.Lifecycle, p Params, c *client.Client, engine *rules.Engine, archiver *archive.Archiver, br *bridge.Bridge, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	var detach func()
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			c.SetEvaluator(engine)
			engine.Start(context.Background())
			archiver.Start(context.Background())

			// Mirror session lifecycle events into the daemon log.
			ch, stop := br.Listen("session.", 64)
			detach = stop
			go func() {
				for evt := range ch {
					logger.Info("session event", zap.String("kind", evt.Kind), zap.Any("payload", evt.Payload))
				}
			}()

			if p.AutoConnect {
				state, detail := c.Connect(context.Background())
				logger.Info("auto-connect",
					zap.String("state", string(state)),
					zap.String("detail", detail))
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			if detach != nil {
				detach()
			}
			if ok, detail := c.Disconnect(); !ok {
				logger.Info("client already disconnected", zap.String("detail", detail))
			}
			engine.Stop()
			archiver.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing archive db", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
