package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	usageredis "github.com/xraph/tally/usage/redis"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tally.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "log:\n  format: text\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(3), cfg.Billing.FreeTierLimit)
	assert.Equal(t, "UTC", cfg.Billing.Timezone)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "0 6 * * *", cfg.Scheduler.Schedule)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
billing:
  free_tier_limit: 10
  timezone: Asia/Kolkata
razorpay:
  key_id: rzp_test
`)
	t.Setenv("TALLY_SERVER_ADDR", ":9100")
	t.Setenv("TALLY_SCHEDULER_SCHEDULE", "*/15 * * * *")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, int64(10), cfg.Billing.FreeTierLimit)
	assert.Equal(t, "Asia/Kolkata", cfg.Billing.Timezone)
	assert.Equal(t, "*/15 * * * *", cfg.Scheduler.Schedule)
	assert.Equal(t, "rzp_test", cfg.Razorpay.KeyID)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewAppUsesRedisCounters(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := loadConfig(writeConfig(t, "redis:\n  addr: "+mr.Addr()+"\n"))
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.close()

	_, ok := a.usage.(*usageredis.Store)
	assert.True(t, ok)
	assert.NotNil(t, a.scheduler)
}

func TestNewAppRejectsBadTimezone(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "billing:\n  timezone: Nowhere/Land\n"))
	require.NoError(t, err)

	_, err = newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestRecurCommandPrintsReport(t *testing.T) {
	path := writeConfig(t, "log:\n  level: error\n")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "recur"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"due": 0`)
}
