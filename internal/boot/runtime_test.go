package boot

import (
	"testing"
	"time"

	"github.com/clawpanel/clawpanel/internal/config"
)

func TestProvideRuntimeConfigRequiresSecret(t *testing.T) {
	if _, err := ProvideRuntimeConfig(config.Default()); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestProvideRuntimeConfigParsesChannels(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "s3cret"
	cfg.WeChat.Enabled = true
	cfg.WeChat.BaseURL = "http://127.0.0.1:3001/"
	cfg.WeChat.Token = "tok"
	cfg.WeChat.HealthInterval = "2s"

	rt, err := ProvideRuntimeConfig(cfg)
	if err != nil {
		t.Fatalf("runtime config: %v", err)
	}

	if rt.JwtExpiresIn != 24*time.Hour {
		t.Fatalf("jwt expires in = %v", rt.JwtExpiresIn)
	}
	if !rt.WeChat.Enabled || rt.WeChat.BaseURL.String() != "http://127.0.0.1:3001" {
		t.Fatalf("wechat = %+v", rt.WeChat)
	}
	if rt.WeChat.HealthInterval != 2*time.Second || rt.WeChat.RequestTimeout != 10*time.Second {
		t.Fatalf("wechat timings = %v / %v", rt.WeChat.HealthInterval, rt.WeChat.RequestTimeout)
	}
	if rt.QQ.Enabled || rt.QQ.BaseURL != nil {
		t.Fatalf("qq should be disabled, got %+v", rt.QQ)
	}
	if rt.ReconcileInterval != 8*time.Second || rt.ReconnectDelay != 5*time.Second {
		t.Fatalf("bridge timings = %v / %v", rt.ReconcileInterval, rt.ReconnectDelay)
	}
}

func TestProvideRuntimeConfigEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("WECHAT_TOKEN", "from-env")
	t.Setenv("ADMIN_TOKEN", "admin-env")

	cfg := config.Default()
	cfg.Auth.JWTSecret = "s3cret"
	cfg.WeChat.Enabled = true

	rt, err := ProvideRuntimeConfig(cfg)
	if err != nil {
		t.Fatalf("runtime config: %v", err)
	}
	if rt.ServerAddr != ":9999" {
		t.Fatalf("server addr = %q", rt.ServerAddr)
	}
	if rt.WeChat.Token != "from-env" {
		t.Fatalf("wechat token = %q", rt.WeChat.Token)
	}
	if rt.AdminToken != "admin-env" {
		t.Fatalf("admin token = %q", rt.AdminToken)
	}
}

func TestProvideRuntimeConfigSecretFromEnv(t *testing.T) {
	cfg := config.Default()
	if _, err := ProvideRuntimeConfig(cfg); err == nil {
		t.Fatal("expected error without jwt secret")
	}

	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("QQ_ACCESS_TOKEN", "qq-env")
	cfg.QQ.Enabled = true
	rt, err := ProvideRuntimeConfig(cfg)
	if err != nil {
		t.Fatalf("runtime config: %v", err)
	}
	if rt.JwtSecret != "env-secret" || rt.QQ.Token != "qq-env" {
		t.Fatalf("secret = %q, qq token = %q", rt.JwtSecret, rt.QQ.Token)
	}
}

func TestProvideRuntimeConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"base url": func(c *config.Config) {
			c.QQ.Enabled = true
			c.QQ.BaseURL = "not a url"
		},
		"interval": func(c *config.Config) {
			c.WeChat.Enabled = true
			c.WeChat.HealthInterval = "soon"
		},
		"reconcile": func(c *config.Config) {
			c.Bridge.ReconcileInterval = "-1s"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Auth.JWTSecret = "s3cret"
			mutate(&cfg)
			if _, err := ProvideRuntimeConfig(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
