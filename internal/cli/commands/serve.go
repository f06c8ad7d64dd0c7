package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/taskprovider/internal/cli/config"
	"github.com/conduit-lang/taskprovider/internal/cli/ui"
	"github.com/conduit-lang/taskprovider/internal/notify"
	"github.com/conduit-lang/taskprovider/internal/provider"
	"github.com/conduit-lang/taskprovider/internal/uri"
	"github.com/conduit-lang/taskprovider/internal/web/auth"
	"github.com/conduit-lang/taskprovider/internal/web/cache"
	"github.com/conduit-lang/taskprovider/internal/web/middleware"
	"github.com/conduit-lang/taskprovider/internal/web/profiling"
	"github.com/conduit-lang/taskprovider/internal/web/ratelimit"
	"github.com/conduit-lang/taskprovider/internal/web/router"
	"github.com/conduit-lang/taskprovider/internal/web/server"
	"github.com/conduit-lang/taskprovider/internal/web/stream"
	"github.com/conduit-lang/taskprovider/internal/web/websocket"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and change stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			logger, err := cfg.Log.Logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := newService(ctx, cfg, logger)
			if err != nil {
				cmd.PrintErr(ui.ConfigError(err, opts.noColor))
				return errReported
			}
			defer svc.Close()

			serverConfig := server.DefaultConfig(svc.Handler)
			serverConfig.Address = cfg.Address()
			serverConfig.Logger = logger

			srv, err := server.New(serverConfig)
			if err != nil {
				return err
			}
			// Hijacked websocket connections are not drained by http.Server
			srv.RegisterHook(func(ctx context.Context) error {
				svc.hub.Shutdown()
				return nil
			})

			return srv.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	return cmd
}

// eventsPath serves the Server-Sent Events change feed
const eventsPath = "/events"

// service is the wired provider, notifier and HTTP surface
type service struct {
	Handler http.Handler

	provider *provider.Provider
	resolver *notify.Resolver
	hub      *websocket.Hub
	logger   *zap.Logger
	closers  []func() error
}

func newService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*service, error) {
	svc := &service{
		resolver: notify.NewResolver(notify.Options{
			Workers: cfg.Notify.Workers,
			Buffer:  cfg.Notify.Buffer,
			Logger:  logger.Named("notify"),
		}),
		logger: logger,
	}

	p, err := openProvider(ctx, cfg, svc.resolver)
	if err != nil {
		svc.resolver.Shutdown()
		return nil, err
	}
	svc.provider = p

	if err := svc.wire(ctx, cfg); err != nil {
		svc.Close()
		return nil, err
	}

	logger.Info("service ready",
		zap.String("authority", cfg.Authority),
		zap.String("driver", cfg.Database.Driver),
		zap.Int("collections", len(cfg.Collections)),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.Bool("auth", cfg.Auth.JWTSecret != ""),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Int("write_limit", cfg.RateLimit.Writes))

	return svc, nil
}

// wire attaches observers to the resolver and builds the HTTP handler
func (s *service) wire(ctx context.Context, cfg *config.Config) error {
	root := uri.New(cfg.Authority)

	s.hub = websocket.NewHub(ctx, s.logger.Named("websocket"))
	go s.hub.Run()
	s.onClose(func() error {
		s.hub.Shutdown()
		return nil
	})
	s.observe(root, s.hub)

	var client *redis.Client
	if cfg.Redis.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.onClose(client.Close)

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		if err := s.bridge(ctx, client, cfg.Redis.Channel, root); err != nil {
			return err
		}
	}

	chain := middleware.NewChain(
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger.Named("http"), "/healthz"),
	)
	if cfg.Auth.JWTSecret != "" {
		chain.Use(middleware.RequireToken(auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)))
	}

	if cfg.RateLimit.Writes > 0 {
		limiter, err := s.limiter(client, cfg.RateLimit)
		if err != nil {
			return err
		}
		chain.Use(ratelimit.Writes(limiter, nil, s.logger.Named("ratelimit")))
	}

	if cfg.Cache.Enabled {
		var store cache.Cache
		if client != nil {
			store = cache.NewRedisCache(client, "taskprovider:"+cfg.Authority+":")
		} else {
			store = cache.NewMemoryCache(time.Minute)
		}
		s.onClose(store.Close)

		reads := cache.NewReadCache(store, cfg.Cache.TTL, s.logger.Named("cache"))
		s.observe(root, reads)
		chain.Use(reads.Middleware("/healthz", eventsPath, profiling.Path))
	}

	r := router.NewRouter()
	wsConfig := websocket.DefaultConfig(root)
	wsConfig.CheckOrigin = websocket.AllowOrigins(cfg.Server.AllowedOrigins...)
	router.NewHandlers(s.provider).Register(r, websocket.NewUpgrader(wsConfig, s.hub))
	r.Handle(http.MethodGet, eventsPath, "events", stream.NewFeed(stream.DefaultConfig(root), s.resolver, s.logger.Named("events")))
	if cfg.Server.Pprof {
		profiling.Register(r)
	}

	s.Handler = chain.Then(r)
	s.logger.Debug("http surface built", zap.Int("middleware", chain.Len()), zap.Int("routes", len(r.Routes())))
	return nil
}

func (s *service) limiter(client *redis.Client, cfg config.RateLimitConfig) (ratelimit.Limiter, error) {
	if client != nil {
		return ratelimit.NewRedisLimiter(client, cfg.Writes, cfg.Window, "taskprovider:ratelimit:")
	}

	tb, err := ratelimit.NewTokenBucket(cfg.Writes, cfg.Window)
	if err != nil {
		return nil, err
	}
	s.onClose(tb.Close)
	return tb, nil
}

// bridge publishes local changes to redis and relays changes from other
// processes into the local resolver
func (s *service) bridge(ctx context.Context, client *redis.Client, channel string, root uri.Identifier) error {
	origin := notify.NewOrigin()
	s.observe(root, notify.NewRedisPublisher(client, channel, origin))

	relay := notify.NewRedisRelay(client, channel, origin, s.resolver, s.logger.Named("relay"))
	stop, err := relay.Start(ctx)
	if err != nil {
		return err
	}
	s.onClose(stop)

	s.logger.Info("redis bridge started", zap.String("channel", channel), zap.String("origin", origin))
	return nil
}

// observe registers o on the resolver until Close
func (s *service) observe(id uri.Identifier, o notify.Observer) {
	unregister := s.resolver.RegisterObserver(id, o)
	s.onClose(func() error {
		unregister()
		return nil
	})
}

// onClose queues fn to run on Close
func (s *service) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases everything newService acquired, newest first, then drains
// pending notifications and closes the store
func (s *service) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil

	s.resolver.Shutdown()

	if s.provider != nil {
		if err := s.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
