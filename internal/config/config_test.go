// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Workflow.EscalationTimeout)
	assert.Equal(t, 30*time.Second, cfg.Workflow.EscalationInterval)
	assert.True(t, cfg.Workflow.EscalationEnabled)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "mongo")
	t.Setenv("ESCALATION_TIMEOUT", "2m")
	t.Setenv("ESCALATION_INTERVAL", "45")
	t.Setenv("ESCALATION_ENABLED", "FALSE")
	t.Setenv("ESCALATION_SWEEP_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Workflow.EscalationTimeout)
	assert.Equal(t, 45*time.Second, cfg.Workflow.EscalationInterval)
	assert.False(t, cfg.Workflow.EscalationEnabled)
	assert.Equal(t, 1, cfg.Workflow.SweepConcurrency)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("STORAGE_BACKEND", "ftp")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("ENVIRONMENT", "production")
	_, err = Load()
	assert.Error(t, err, "default JWT secret is refused in production")

	t.Setenv("JWT_SECRET", "a-real-secret")
	_, err = Load()
	assert.NoError(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "od", Password: "pw", Database: "od_approval", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=od password=pw dbname=od_approval sslmode=disable", d.DSN())
}
