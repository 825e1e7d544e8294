package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/showroom/internal/api"
	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/config"
	"github.com/matheus3301/showroom/internal/kv"
	"github.com/matheus3301/showroom/internal/lock"
	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/notify"
	"github.com/matheus3301/showroom/internal/outbox"
	"github.com/matheus3301/showroom/internal/presence"
	"github.com/matheus3301/showroom/internal/session"
	"github.com/matheus3301/showroom/internal/sessionctl"
	"github.com/matheus3301/showroom/internal/showroom"
	"github.com/matheus3301/showroom/internal/status"
	"github.com/matheus3301/showroom/internal/store"
	"github.com/matheus3301/showroom/internal/stream"
	intsync "github.com/matheus3301/showroom/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string // optional override for testing; empty = use default
	Verbose    bool
	// Config overrides loading ~/.showroom/config.toml when set.
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideIdentity,
			provideClient,
			provideCache,
			provideStreamLoop,
			providePipeline,
			provideURLCache,
			provideRoster,
			provideSyncer,
			provideNotifier,
			provideSyncEngine,
			provideSender,
			provideController,
			provideSessionService,
			provideChatService,
			providePresenceService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	return session.LoadConfig()
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile, p.Verbose)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so the cache is never opened by two daemons.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Repaired {
		logger.Warn("repaired interrupted migration", zap.Uint("version", result.Version))
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideIdentity(cfg *config.Config) chat.Identity {
	return chat.Identity{
		Email: cfg.Identity.Email,
		Name:  cfg.Identity.Name,
		Role:  cfg.Identity.Role,
		Plan:  cfg.Identity.Plan,
	}
}

func provideClient(cfg *config.Config, logger *zap.Logger) (*showroom.Client, error) {
	return showroom.New(showroom.Options{
		BaseURL: cfg.Server.BaseURL,
		Token:   cfg.Server.Token,
		Timeout: cfg.Server.Timeout.Duration,
		Logger:  logger.Named("http"),
	})
}

func provideCache(lc fx.Lifecycle, p Params, cfg *config.Config, logger *zap.Logger) (kv.Cache, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cache, err := kv.Open(ctx, cfg.Cache.RedisURL, "showroom:"+p.Profile+":")
	if err != nil {
		return nil, err
	}
	if cfg.Cache.RedisURL != "" {
		logger.Info("url cache backed by redis")
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return cache.Close() }})
	return cache, nil
}

func streamConfig(cfg *config.Config) stream.Config {
	return stream.Config{
		BaseDelay:       cfg.Stream.ReconnectDelay.Duration,
		MaxBackoff:      cfg.Stream.MaxBackoff.Duration,
		DisconnectAfter: cfg.Stream.DisconnectAfter,
	}
}

func provideStreamLoop(cfg *config.Config, m *status.Machine, logger *zap.Logger) *stream.Loop {
	return stream.NewLoop(streamConfig(cfg), m, logger.Named("stream"))
}

func providePipeline(cfg *config.Config, client *showroom.Client, b *bus.Bus, logger *zap.Logger) *attach.Pipeline {
	comp := attach.DefaultCompressor()
	comp.MaxDimension = cfg.Attachments.MaxDimension
	comp.TargetBytes = cfg.Attachments.TargetBytes
	return attach.NewPipeline(attach.Config{
		MaxBytes:   cfg.Attachments.MaxBytes,
		Compressor: comp,
	}, client, b, logger.Named("attach"))
}

func provideURLCache(cfg *config.Config, client *showroom.Client, cache kv.Cache, b *bus.Bus, logger *zap.Logger) *attach.URLCache {
	return attach.NewURLCache(client, cache, cfg.Attachments.URLTTL.Duration, cfg.Attachments.URLRefresh.Duration, b, logger.Named("urls"))
}

func provideRoster(id chat.Identity, cfg *config.Config, b *bus.Bus) *presence.Roster {
	retention := presence.RetainMissing
	if cfg.Presence.PruneMissing {
		retention = presence.PruneMissing
	}
	return presence.NewRoster(id.Email,
		presence.WithGrace(cfg.Presence.Grace.Duration),
		presence.WithRetention(retention),
		presence.WithBus(b),
	)
}

func provideSyncer(roster *presence.Roster, client *showroom.Client, db *store.DB, cfg *config.Config, logger *zap.Logger) *presence.Syncer {
	dial := func(ctx context.Context) (stream.Source, error) {
		s, err := client.OpenPresenceStream(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return presence.NewSyncer(roster, client, dial, db, presence.SyncConfig{
		Refetch: cfg.Presence.RefetchInterval.Duration,
		Stream:  streamConfig(cfg),
	}, logger)
}

func provideNotifier(id chat.Identity, cfg *config.Config, b *bus.Bus) *notify.Notifier {
	return notify.New(id.Email, cfg.Notify.SystemChannels, b)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideSender(db *store.DB, client *showroom.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, b, logger.Named("outbox"))
}

type controllerDeps struct {
	fx.In

	Identity chat.Identity
	Client   *showroom.Client
	Sender   *outbox.Sender
	Loop     *stream.Loop
	Pipeline *attach.Pipeline
	Roster   *presence.Roster
	Notifier *notify.Notifier
	DB       *store.DB
	Bus      *bus.Bus
	Logger   *zap.Logger
}

func provideController(d controllerDeps) *sessionctl.Controller {
	return sessionctl.New(sessionctl.Deps{
		Identity: d.Identity,
		API:      d.Client,
		Dial: func(ctx context.Context, t chat.Target) (stream.Source, error) {
			s, err := d.Client.OpenStream(ctx, t)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Queue:       d.Sender,
		Loop:        d.Loop,
		Attachments: d.Pipeline,
		Moderator:   d.Client,
		Roster:      d.Roster,
		Notifier:    d.Notifier,
		DB:          d.DB,
		Bus:         d.Bus,
		Logger:      d.Logger,
	})
}

func provideSessionService(p Params, m *status.Machine, loop *stream.Loop, ctl *sessionctl.Controller, syncer *presence.Syncer, db *store.DB) *api.SessionService {
	return api.NewSessionService(p.Profile, m, loop, ctl, syncer, db)
}

func provideChatService(ctl *sessionctl.Controller, db *store.DB, urls *attach.URLCache, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(ctl, db, urls, b, logger.Named("api"))
}

func providePresenceService(roster *presence.Roster, syncer *presence.Syncer) *api.PresenceService {
	return api.NewPresenceService(roster, syncer)
}

type lifecycleDeps struct {
	fx.In

	Server     *Server
	Lock       *lock.Lock
	DB         *store.DB
	Engine     *intsync.Engine
	Sender     *outbox.Sender
	URLs       *attach.URLCache
	Syncer     *presence.Syncer
	Controller *sessionctl.Controller
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := d.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The sync engine subscribes first so no write-through is missed.
			d.Engine.Start(ctx)
			d.Sender.Start(ctx)
			d.URLs.Start(ctx)
			d.Syncer.Start(ctx)
			d.Controller.Start(ctx)

			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			go func() {
				if _, err := d.Controller.Channels(ctx); err != nil {
					logger.Warn("initial channel list failed", zap.Error(err))
				}
				if t, ok := d.Controller.Resume(ctx); ok {
					logger.Info("resumed last target", zap.String("target", t.Key()))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			d.Server.Stop(stopCtx)
			d.Controller.Stop()
			d.Syncer.Stop()
			d.URLs.Stop()
			d.Sender.Stop()
			d.Engine.Stop()
			cancel()
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
