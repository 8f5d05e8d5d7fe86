package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starscheduler/starscheduler/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsWhenFileOmitsSystemBlock(t *testing.T) {
	path := writeConfig(t, `{"outputs": []}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxThreads)
	assert.Equal(t, 100, cfg.SchedulerPollIntervalMs)
	assert.Equal(t, 5, cfg.CacheUpdateIntervalSec)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogSTDOUT)
	assert.False(t, cfg.CancelPresentationsOnExit)
	assert.Empty(t, cfg.Outputs)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"system": {
			"performance": {"maxThreads": 8},
			"logLevel": "debug",
			"logSTDOUT": true
		},
		"outputs": []
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxThreads)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogSTDOUT)
	// untouched defaults still apply
	assert.Equal(t, 100, cfg.SchedulerPollIntervalMs)
}

func TestLoadDerivesClientIDAndDefaultPort(t *testing.T) {
	path := writeConfig(t, `{
		"outputs": [
			{"star": "i2hd", "protocol": "shell", "credentials": {"hostname": "10.0.0.5", "user": "admin"}}
		]
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Outputs, 1)

	out := cfg.Outputs[0]
	assert.Equal(t, "i2hd_10_0_0_5", out.ID)
	assert.Equal(t, 22, out.Port)
}

func TestLoadRejectsDuplicateClientIDs(t *testing.T) {
	path := writeConfig(t, `{
		"outputs": [
			{"id": "dup", "star": "i2hd", "protocol": "shell", "credentials": {"hostname": "10.0.0.1"}},
			{"id": "dup", "star": "i2hd", "protocol": "shell", "credentials": {"hostname": "10.0.0.2"}}
		]
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsI1WithoutSubstituteUser(t *testing.T) {
	path := writeConfig(t, `{
		"outputs": [
			{"star": "i1", "protocol": "telnet", "credentials": {"hostname": "10.0.0.9"}}
		]
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

func TestConfigValidateRejectsMaxThreadsBelowOne(t *testing.T) {
	cfg := Config{MaxThreads: 0}
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateAcceptsUniqueClients(t *testing.T) {
	cfg := Config{
		MaxThreads: 1,
		Outputs: []model.Client{
			{ID: "a", Transport: model.TransportDatagram},
			{ID: "b", Transport: model.TransportDatagram},
		},
	}
	assert.NoError(t, cfg.Validate())
}

func TestEnvKeyTransformLowersAndDelimits(t *testing.T) {
	assert.Equal(t, "system.loglevel", envKeyTransform("STARSCHEDULER_SYSTEM_LOGLEVEL"))
	assert.Equal(t, "system.performance.maxthreads", envKeyTransform("STARSCHEDULER_SYSTEM_PERFORMANCE_MAXTHREADS"))
}
