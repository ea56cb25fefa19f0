package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "invoicing", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "invoicing", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, CounterBackendDatabase, cfg.Numbering.CounterBackend)
		assert.Equal(t, "{tenant_abbr}-{year}-{seq:06d}", cfg.Numbering.DefaultPattern)
		assert.Equal(t, time.Hour, cfg.Scheduler.OverdueInterval)
		assert.Equal(t, 587, cfg.SMTP.Port)
		assert.Equal(t, 30*time.Second, cfg.PDF.Timeout)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
		assert.False(t, cfg.VIES.Enabled)
		assert.Equal(t, 10*time.Second, cfg.VIES.Timeout)
		assert.True(t, cfg.Swagger.Enabled)
		assert.False(t, cfg.Telemetry.Profiling.Enabled)
		assert.Equal(t, "http://localhost:4040", cfg.Telemetry.Profiling.ServerAddress)
		assert.Equal(t, []string{"cpu", "alloc_space", "inuse_space", "goroutines"}, cfg.Telemetry.Profiling.ProfileTypes)
	})

	t.Run("loads values from environment variables with INV prefix", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("INV_APP_PORT", "9000")
		t.Setenv("INV_DATABASE_HOST", "db.internal")
		t.Setenv("INV_DATABASE_PORT", "5433")
		t.Setenv("INV_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("INV_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("INV_NUMBERING_COUNTER_BACKEND", "redis")
		t.Setenv("INV_SCHEDULER_OVERDUE_INTERVAL", "30m")
		t.Setenv("INV_STORAGE_BUCKET", "invoices")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, CounterBackendRedis, cfg.Numbering.CounterBackend)
		assert.Equal(t, 30*time.Minute, cfg.Scheduler.OverdueInterval)
		assert.Equal(t, "invoices", cfg.Storage.Bucket)
	})

	t.Run("reads config.yaml and .env", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		yaml := `
app:
  name: billing
numbering:
  default_pattern: "{year}/{seq:04d}"
  tenant_abbreviations:
    11111111-1111-1111-1111-111111111111: ACME
tax:
  stamp_duty_threshold: "77.47"
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INV_SMTP_HOST=mail.local\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("INV_SMTP_HOST") })

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "billing", cfg.App.Name)
		assert.Equal(t, "{year}/{seq:04d}", cfg.Numbering.DefaultPattern)
		assert.Equal(t, "ACME", cfg.Numbering.TenantAbbreviations["11111111-1111-1111-1111-111111111111"])
		assert.Equal(t, "77.47", cfg.Tax.StampDutyThreshold)
		assert.Equal(t, "mail.local", cfg.SMTP.Host)
	})

	t.Run("reads the profiling section", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		yaml := `
telemetry:
  enabled: true
  profiling:
    enabled: true
    server_address: "http://pyroscope:4040"
    profile_types: [cpu, mutex_count]
    mutex_profile_fraction: 10
    span_profiles: true
swagger:
  allowed_ips: ["10.0.0.0/8"]
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

		cfg, err := Load()
		require.NoError(t, err)

		p := cfg.Telemetry.Profiling
		assert.True(t, p.Enabled)
		assert.Equal(t, "http://pyroscope:4040", p.ServerAddress)
		assert.Equal(t, []string{"cpu", "mutex_count"}, p.ProfileTypes)
		assert.Equal(t, 10, p.MutexProfileFraction)
		assert.True(t, p.SpanProfiles)
		assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Swagger.AllowedIPs)
	})

	t.Run("rejects span profiles without tracing", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("INV_TELEMETRY_PROFILING_ENABLED", "true")
		t.Setenv("INV_TELEMETRY_PROFILING_SPAN_PROFILES", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "span_profiles")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("INV_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("INV_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown counter backend", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("INV_NUMBERING_COUNTER_BACKEND", "etcd")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "numbering.counter_backend")
	})

	t.Run("rejects overdue interval under a minute", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("INV_SCHEDULER_OVERDUE_INTERVAL", "10s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overdue_interval")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("INV_APP_ENV", "production")
		t.Setenv("INV_DATABASE_PASSWORD", "secure-password")
		t.Setenv("INV_DATABASE_SSLMODE", "require")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
		assert.False(t, cfg.Swagger.Enabled)
	})

	t.Run("swagger can be enabled explicitly in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("INV_SWAGGER_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Swagger.Enabled)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("INV_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("INV_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects short jwt secret in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("INV_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("rejects in-memory counters in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("INV_NUMBERING_COUNTER_BACKEND", "memory")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "memory")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "/testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
