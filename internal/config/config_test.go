package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/cadence/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := config.Load(viper.New(), "")
		require.NoError(t, err)

		assert.Equal(t, "./data", cfg.DataDir)
		assert.Equal(t, filepath.Join("data", "replay"), cfg.WorkDir)
		assert.Equal(t, filepath.Join("data", "runs.db"), cfg.Index.DSN)
		assert.True(t, cfg.Save)
		assert.Equal(t, 10000, cfg.ClockHz)
		assert.Equal(t, 30*time.Second, cfg.HandoffTimeout)
		assert.Zero(t, cfg.AcquisitionTimeout)
		assert.Equal(t, ":1180", cfg.HTTP.Addr)
		assert.Equal(t, "http://localhost:1172", cfg.HardwareURL)
	})

	t.Run("File Env And DotEnv", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile("cadence.yaml", []byte(`
data_dir: /lab/data
settle_delay: 120ms
batch: 2
index:
  driver: redis
redis:
  addr: localhost:6379
`), 0644))
		require.NoError(t, os.WriteFile(".env", []byte("CADENCE_CLOCK_HZ=20000\n"), 0644))
		t.Setenv("CADENCE_BATCH", "5")
		t.Setenv("CADENCE_REDIS_DB", "3")
		t.Cleanup(func() { os.Unsetenv("CADENCE_CLOCK_HZ") })

		cfg, err := config.Load(viper.New(), "")
		require.NoError(t, err)

		assert.Equal(t, "/lab/data", cfg.DataDir)
		assert.Equal(t, "/lab/data/replay", cfg.WorkDir)
		assert.Equal(t, 120*time.Millisecond, cfg.SettleDelay)
		assert.Equal(t, 5, cfg.Batch, "env wins over file")
		assert.Equal(t, 20000, cfg.ClockHz, ".env is loaded")
		assert.Equal(t, "redis", cfg.Index.Driver)
		assert.Equal(t, 3, cfg.Redis.DB)
		assert.Equal(t, 120*time.Millisecond, cfg.Runtime().SettleDelay)
	})

	t.Run("Explicit File Must Exist", func(t *testing.T) {
		t.Chdir(t.TempDir())
		_, err := config.Load(viper.New(), "missing.yaml")
		assert.Error(t, err)
	})
}

func TestDecode_Validation(t *testing.T) {
	_, err := config.Decode(map[string]any{"index": map[string]any{"driver": "postgres"}})
	assert.ErrorContains(t, err, "unknown index driver")

	_, err = config.Decode(map[string]any{"index": map[string]any{"driver": "redis"}})
	assert.ErrorContains(t, err, "redis.addr")
}
