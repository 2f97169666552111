package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/clawpanel/clawpanel/internal/boot"
	"github.com/clawpanel/clawpanel/internal/bridge"
	"github.com/clawpanel/clawpanel/internal/channel"
	"github.com/clawpanel/clawpanel/internal/channel/adapters/qq"
	"github.com/clawpanel/clawpanel/internal/channel/adapters/wechat"
	"github.com/clawpanel/clawpanel/internal/channel/transport"
)

var ChannelModule = fx.Module(
	"channel",
	fx.Provide(
		provideChannelManager,
		provideBridge,
	),
	fx.Invoke(startChannels),
)

func provideChannelManager(log *slog.Logger, rc *boot.RuntimeConfig) (*channel.Manager, error) {
	mgr := channel.NewManager(log)
	if rc.QQ.Enabled {
		client := transport.New(rc.QQ.BaseURL, transport.Options{
			Timeout:    rc.QQ.RequestTimeout,
			Token:      rc.QQ.Token,
			TokenParam: qq.TokenParam,
			Logger:     log,
		})
		if err := mgr.Register(newSource(log, qq.NewAdapter(log, client, rc.QQ.Token), rc.QQ)); err != nil {
			return nil, err
		}
	}
	if rc.WeChat.Enabled {
		client := transport.New(rc.WeChat.BaseURL, transport.Options{
			Timeout: rc.WeChat.RequestTimeout,
			Token:   rc.WeChat.Token,
			Logger:  log,
		})
		if err := mgr.Register(newSource(log, wechat.NewAdapter(log, client, rc.WeChat.Token), rc.WeChat)); err != nil {
			return nil, err
		}
	}
	if len(mgr.Sources()) == 0 {
		log.Warn("no channel enabled; enable [qq] or [wechat] in the config")
	}
	return mgr, nil
}

func newSource(log *slog.Logger, backend channel.Backend, rc boot.ChannelRuntime) *channel.Source {
	return channel.NewSource(backend, channel.SourceOptions{
		HealthInterval: rc.HealthInterval,
		SendRate:       rc.SendRate,
		SendBurst:      rc.SendBurst,
		Logger:         log,
	})
}

func provideBridge(log *slog.Logger, mgr *channel.Manager, rc *boot.RuntimeConfig) *bridge.Bridge {
	return bridge.New(log, mgr, bridge.Options{
		ReplayCapacity:    rc.ReplayCapacity,
		SessionBuffer:     rc.SessionBuffer,
		ReconcileInterval: rc.ReconcileInterval,
	})
}

// startChannels subscribes the bridge before sources start so the first
// liveness results reach observers.
func startChannels(lc fx.Lifecycle, mgr *channel.Manager, b *bridge.Bridge) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			b.Start()
			mgr.Start(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			mgr.Stop()
			b.Stop()
			return nil
		},
	})
}
