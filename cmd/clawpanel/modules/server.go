package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/clawpanel/clawpanel/internal/boot"
	"github.com/clawpanel/clawpanel/internal/bridge"
	"github.com/clawpanel/clawpanel/internal/config"
	"github.com/clawpanel/clawpanel/internal/fileserver"
	"github.com/clawpanel/clawpanel/internal/handlers"
	"github.com/clawpanel/clawpanel/internal/server"
	"github.com/clawpanel/clawpanel/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideAuthHandler),
		provideServerHandler(handlers.NewStatusHandler),
		provideServerHandler(handlers.NewChannelHandler),
		provideServerHandler(handlers.NewWebhookHandler),
		provideServerHandler(provideObserverHandler),
		provideServer,
	),
	fx.Invoke(startServer, startFileServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideAuthHandler(log *slog.Logger, rc *boot.RuntimeConfig) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, rc.AdminToken, rc.JwtSecret, rc.JwtExpiresIn)
}

func provideObserverHandler(log *slog.Logger, b *bridge.Bridge, cfg config.Config) *handlers.ObserverHandler {
	return handlers.NewObserverHandler(log, b, cfg.Server.AllowedOrigins)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.RuntimeConfig.JwtSecret, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, rc *boot.RuntimeConfig) {
	logger.Info("starting clawpanel", slog.String("version", version.GetInfo()), slog.String("addr", rc.ServerAddr))
	if rc.AdminToken == "" {
		logger.Warn("admin token is empty; /auth/login is disabled")
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

func startFileServer(lc fx.Lifecycle, logger *slog.Logger, rc *boot.RuntimeConfig) error {
	if !rc.FileServer.Enabled {
		return nil
	}
	fs, err := fileserver.New(logger, fileserver.Options{
		Addr:        rc.FileServer.Addr,
		AllowedDirs: rc.FileServer.AllowedDirs,
		DefaultDir:  rc.FileServer.DefaultDir,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return fs.Start()
		},
		OnStop: func(ctx context.Context) error {
			return fs.Stop(ctx)
		},
	})
	return nil
}
