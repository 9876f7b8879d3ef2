package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{FreeTierLimit: -1, Schedule: "*/5 * * * *"})

	assert.Equal(t, int64(-1), cfg.FreeTierLimit)
	assert.Equal(t, "*/5 * * * *", cfg.Schedule)
	assert.Equal(t, 30, cfg.PaymentTermsDays)
	assert.Equal(t, "/tally", cfg.BasePath)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "postgres", cfg.StoreDriver)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{BasePath: "/billing", FreeTierLimit: 5}
	prog := Config{
		BasePath:         "/ignored",
		DisableScheduler: true,
		PublicBaseURL:    "https://pay.example.com",
		PaymentTermsDays: 14,
	}

	cfg := mergeConfigurations(yaml, prog)

	assert.Equal(t, "/billing", cfg.BasePath)
	assert.Equal(t, int64(5), cfg.FreeTierLimit)
	assert.True(t, cfg.DisableScheduler)
	assert.Equal(t, "https://pay.example.com", cfg.PublicBaseURL)
	assert.Equal(t, 14, cfg.PaymentTermsDays)
	assert.Equal(t, "0 6 * * *", cfg.Schedule)
}

func TestStoreForDriverRejectsUnknown(t *testing.T) {
	_, err := storeForDriver(nil, "cassandra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestBuildTallyOptsRejectsBadTimezone(t *testing.T) {
	e := New(WithTimezone("Mars/Olympus"))
	e.config = mergeWithDefaults(e.config)

	_, err := e.buildTallyOpts()
	require.Error(t, err)
}
