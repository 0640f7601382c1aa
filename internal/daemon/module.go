package daemon

import (
	"context"
	"os"

	"github.com/otaviocarvalho/chatsync/internal/bus"
	"github.com/otaviocarvalho/chatsync/internal/config"
	"github.com/otaviocarvalho/chatsync/internal/lock"
	"github.com/otaviocarvalho/chatsync/internal/logging"
	"github.com/otaviocarvalho/chatsync/internal/outbox"
	"github.com/otaviocarvalho/chatsync/internal/profile"
	"github.com/otaviocarvalho/chatsync/internal/realtime"
	"github.com/otaviocarvalho/chatsync/internal/remote"
	"github.com/otaviocarvalho/chatsync/internal/status"
	"github.com/otaviocarvalho/chatsync/internal/store"
	intsync "github.com/otaviocarvalho/chatsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRemote,
			provideRealtime,
			provideTracker,
			provideSyncEngine,
			provideSender,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath(p.ProfileName))
	if os.IsNotExist(err) {
		return config.Default(), nil
	}
	return cfg, err
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetOpTimeout(cfg.StoreTimeout())
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Config) *remote.Client {
	return remote.NewClient(cfg.APIBaseURL, cfg.AuthToken,
		remote.WithTimeout(cfg.NetTimeout()),
		remote.WithPageSize(cfg.PageSize))
}

func provideRealtime(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *realtime.Channel {
	if cfg.RealtimeURL == "" {
		return nil
	}
	return realtime.New(cfg.RealtimeURL, cfg.AuthToken, b, logger)
}

func provideTracker(db *store.DB, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *status.Tracker {
	return status.NewTracker(db, b, cfg.UserID, logger)
}

func provideSyncEngine(db *store.DB, client *remote.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, client, b, cfg.UserID, logger,
		intsync.WithInterval(cfg.SyncInterval()))
}

func provideSender(db *store.DB, client *remote.Client, tracker *status.Tracker, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, tracker, b, cfg.UserID, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, engine *intsync.Engine, channel *realtime.Channel, sender *outbox.Sender, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Engine first: it subscribes to realtime events before the
			// channel can publish any.
			engine.Start(context.Background())
			if channel != nil {
				channel.Start(context.Background())
			}
			sender.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			sender.Stop()
			if channel != nil {
				channel.Close()
			}
			engine.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
