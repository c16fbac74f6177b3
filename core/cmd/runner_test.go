package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/captionrelay/core/config"
	coretelegram "github.com/m3rciful/captionrelay/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	opts coretelegram.RunOptions
	err  error
}

func (a fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, a.err }

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CAPTIONBOT_CONFIG", "")

	path, optional := ResolveConfigPath("explicit.yaml", "CAPTIONBOT_CONFIG", "config.yaml")
	assert.Equal(t, "explicit.yaml", path)
	assert.False(t, optional)

	path, optional = ResolveConfigPath("", "CAPTIONBOT_CONFIG", "config.yaml")
	assert.Equal(t, "config.yaml", path)
	assert.True(t, optional)

	t.Setenv("CAPTIONBOT_CONFIG", "/etc/bot.toml")
	path, optional = ResolveConfigPath("", "CAPTIONBOT_CONFIG", "config.yaml")
	assert.Equal(t, "/etc/bot.toml", path)
	assert.False(t, optional)
}

func TestRunWrapsLifecycleAndFlushesLogs(t *testing.T) {
	var order []string
	app := fakeApp{opts: coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error {
			order = append(order, "start")
			return nil
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			order = append(order, "stop")
			return nil
		},
	}}

	flushed := false
	err := Run(Options{
		ConfigPath: "bot.yaml",
		LoadConfig: func(path string, optional bool) (ConfigCarrier, error) {
			assert.Equal(t, "bot.yaml", path)
			assert.False(t, optional)
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { flushed = true; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
		Context: context.Background(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "stop"}, order)
	assert.True(t, flushed)
}

func TestRunFlushesLogsWhenBootstrapFails(t *testing.T) {
	flushed := false
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(string, bool) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return nil, errors.New("no token") },
		ShutdownLogger: func() error { flushed = true; return nil },
	})
	require.ErrorContains(t, err, "no token")
	assert.True(t, flushed)
}

func TestRunRequiresCoreConfig(t *testing.T) {
	err := Run(Options{
		ConfigPath: "x.yaml",
		LoadConfig: func(string, bool) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return fakeApp{}, nil },
	})
	require.ErrorContains(t, err, "missing core configuration")
}
