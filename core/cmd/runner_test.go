package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/flowbot/core/config"
	coretelegram "github.com/m3rciful/flowbot/core/telegram"
)

type fakeCarrier struct{ cfg *coreconfig.Config }

func (f fakeCarrier) CoreConfig() *coreconfig.Config { return f.cfg }

type fakeApp struct {
	opts coretelegram.RunOptions
	err  error
}

func (f fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return f.opts, f.err }

func loadOK(path string) (ConfigCarrier, error) {
	return fakeCarrier{cfg: &coreconfig.Config{}}, nil
}

func TestRunLoadsEnvFileAndRunsHooks(t *testing.T) {
	const env = "FLOWBOT_RUNNER_TEST_CONFIG"
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(env+"=from-env.yaml\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv(env) })

	var (
		gotPath              string
		started, stopped     bool
		ran, loggerWasClosed bool
	)
	err := Run(Options{
		ConfigEnvVar:      env,
		DefaultConfigPath: "default.yaml",
		EnvFiles:          []string{filepath.Join(dir, "missing.env"), envFile},
		LoadConfig: func(path string) (ConfigCarrier, error) {
			gotPath = path
			return loadOK(path)
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) {
			return fakeApp{opts: coretelegram.RunOptions{
				OnStart: func(context.Context, coretelegram.Runtime) error { started = true; return nil },
				OnStop:  func(context.Context, coretelegram.Runtime) error { stopped = true; return nil },
			}}, nil
		},
		ShutdownLogger: func() error { loggerWasClosed = true; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			ran = true
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	require.NoError(t, err)
	require.Equal(t, "from-env.yaml", gotPath)
	require.True(t, ran)
	require.True(t, started)
	require.True(t, stopped)
	require.True(t, loggerWasClosed)
}

func TestRunFailsEarly(t *testing.T) {
	require.Error(t, Run(Options{Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) { return nil, nil }}))
	require.Error(t, Run(Options{LoadConfig: loadOK}))

	noEnv := []string{filepath.Join(t.TempDir(), "none.env")}
	err := Run(Options{
		ConfigEnvVar: "FLOWBOT_RUNNER_TEST_UNSET",
		EnvFiles:     noEnv,
		LoadConfig:   loadOK,
		Bootstrap:    func(context.Context, ConfigCarrier) (TelegramApp, error) { return fakeApp{}, nil },
	})
	require.ErrorContains(t, err, "config path not provided")

	err = Run(Options{
		DefaultConfigPath: "x.yaml",
		EnvFiles:          noEnv,
		LoadConfig:        func(string) (ConfigCarrier, error) { return fakeCarrier{}, nil },
		Bootstrap:         func(context.Context, ConfigCarrier) (TelegramApp, error) { return fakeApp{}, nil },
	})
	require.ErrorContains(t, err, "missing core configuration")

	boom := errors.New("boom")
	err = Run(Options{
		DefaultConfigPath: "x.yaml",
		EnvFiles:          noEnv,
		LoadConfig:        loadOK,
		Bootstrap:         func(context.Context, ConfigCarrier) (TelegramApp, error) { return nil, boom },
	})
	require.ErrorIs(t, err, boom)
}
