package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pddlsynth/internal/oracle"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "PDDLSYNTH_FD_PATH", "PDDLSYNTH_VAL_PATH", "PDDLSYNTH_DATA", "PDDLSYNTH_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendBuiltin, cfg.Oracle.Backend)
	assert.Equal(t, 4, cfg.Synth.Turns)
	assert.Equal(t, 100, cfg.Eval.Trials)
	assert.Equal(t, 400, cfg.MaxCalls)
	assert.Equal(t, time.Second, cfg.RunnerConfig().Timeout)
	assert.IsType(t, &oracle.Builtin{}, cfg.NewOracle(nil))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "pddlsynth.yaml")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Worker.Timeout = 3 * time.Second
	cfg.Synth.BestOfN = 5
	cfg.Eval.Bidirectional = false
	require.NoError(t, cfg.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-secret")
	assert.Contains(t, string(raw), "timeout: 3s")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, loaded.Worker.Timeout)
	assert.Equal(t, 5, loaded.Synth.BestOfN)
	assert.False(t, loaded.Eval.Bidirectional)
	assert.Empty(t, loaded.LLM.APIKey)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("synth:\n  turns: 8\neval:\n  trials: 10\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Synth.Turns)
	assert.Equal(t, 1, cfg.Synth.BestOfN)
	assert.Equal(t, 10, cfg.Eval.Trials)
	assert.True(t, cfg.Eval.WalkFeedback)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("synth: [turns"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("api key and base url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("OPENAI_BASE_URL", "http://localhost:1234/v1")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "http://localhost:1234/v1", cfg.LLM.BaseURL)
	})

	t.Run("planner paths select fast downward", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PDDLSYNTH_FD_PATH", "/opt/fd/fast-downward.py")
		t.Setenv("PDDLSYNTH_VAL_PATH", "/opt/val/Validate")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, BackendFastDownward, cfg.Oracle.Backend)
		require.NoError(t, cfg.Validate())

		fd, ok := cfg.NewOracle(nil).(*oracle.FastDownward)
		require.True(t, ok)
		assert.Equal(t, "/opt/val/Validate", fd.VALPath)
		assert.Equal(t, oracle.SubOptimalAlias, fd.Alias)
	})

	t.Run("data and log level", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PDDLSYNTH_DATA", "/srv/bench")
		t.Setenv("PDDLSYNTH_LOG_LEVEL", "debug")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/srv/bench", cfg.DataPath)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero turns", func(c *Config) { c.Synth.Turns = 0 }, "Config.Synth.Turns"},
		{"unknown isolation", func(c *Config) { c.Worker.Isolation = "thread" }, "Config.Worker.Isolation"},
		{"unknown backend", func(c *Config) { c.Oracle.Backend = "pyperplan" }, "Config.Oracle.Backend"},
		{"fast downward without paths", func(c *Config) { c.Oracle.Backend = BackendFastDownward }, "Config.Oracle.FDPath"},
		{"unknown alias", func(c *Config) { c.Oracle.Alias = "astar" }, "Config.Oracle.Alias"},
		{"missing model", func(c *Config) { c.LLM.Model = "" }, "Config.LLM.Model"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "nope" }, "Config.MetricsAddr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := DefaultConfig()
	cfg.MetricsAddr = ":9090"
	assert.NoError(t, cfg.Validate())
}
