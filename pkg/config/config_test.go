package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 5*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, 3, cfg.Scheduler.SplitThreshold)
	assert.Equal(t, []int{3, 2}, cfg.Scheduler.FormationOrder)
	assert.Equal(t, 4, cfg.Scheduler.MaxGroupSize)
	assert.Equal(t, 24, cfg.Scheduler.MaxPoolSize)
	assert.Equal(t, 10, cfg.Scheduler.MaxIterations)
	assert.True(t, cfg.Scheduler.SkipWeekends)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.CandidatesCacheTTL)
	assert.Equal(t, time.Hour, cfg.Scheduler.JobResultTTL)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadSchedulerOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SCHEDULER_SPLIT_THRESHOLD", "5")
	t.Setenv("SCHEDULER_FORMATION_ORDER", "4, 3,2")
	t.Setenv("SCHEDULER_SKIP_WEEKENDS", "false")
	t.Setenv("SCHEDULER_CANDIDATES_CACHE_TTL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scheduler.SplitThreshold)
	assert.Equal(t, []int{4, 3, 2}, cfg.Scheduler.FormationOrder)
	assert.False(t, cfg.Scheduler.SkipWeekends)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.CandidatesCacheTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SCHEDULER_MAX_GROUP_SIZE", "-1")
	t.Setenv("SCHEDULER_FORMATION_ORDER", "3,one")
	t.Setenv("DB_LOCK_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Scheduler.MaxGroupSize)
	assert.Equal(t, []int{3, 2}, cfg.Scheduler.FormationOrder)
	assert.Equal(t, 5*time.Second, cfg.Database.LockTimeout)
}

func TestParseSizes(t *testing.T) {
	fallback := []int{3, 2}
	assert.Equal(t, fallback, parseSizes("", fallback))
	assert.Equal(t, []int{2}, parseSizes("2", fallback))
	assert.Equal(t, fallback, parseSizes("1,2", fallback))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
