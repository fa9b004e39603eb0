package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploy-tools/depman-go/pkg/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "depman.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromFile_Valid(t *testing.T) {
	path := writeConfigFile(t, `
supervisor:
  log_level: debug
  readiness_timeout: 30s
services:
  - name: api
    command: uvicorn
    args: ["app.main:app", "--port", "8000"]
    port: 8000
    readiness_url: http://localhost:8000/health
    health_url: http://localhost:8000/health
  - name: frontend
    command: streamlit
    port: 8501
    readiness_url: http://localhost:8501/
`)

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Supervisor.LogLevel)
	assert.Equal(t, 30*time.Second, config.Supervisor.ReadinessTimeout)
	require.Len(t, config.Services, 2)
	assert.Equal(t, "api", config.Services[0].Name)
	assert.Equal(t, 8000, config.Services[0].Port)
}

func TestLoadConfigFromFile_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
services:
  - name: api
    command: uvicorn
    port: 8000
`)

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "info", config.Supervisor.LogLevel)
	assert.Equal(t, 10*time.Second, config.Supervisor.StopGraceTimeout)
	assert.Equal(t, 15*time.Second, config.Supervisor.PortReleaseTimeout)
	assert.Equal(t, 60*time.Second, config.Supervisor.ReadinessTimeout)
	assert.Equal(t, time.Second, config.Supervisor.ReadinessInterval)
	assert.Equal(t, 3, config.Supervisor.HealthAttempts)
	assert.Equal(t, 5*time.Second, config.Supervisor.HealthRetryDelay)
	assert.NotEmpty(t, config.Supervisor.RegistryDir)
	assert.NotEmpty(t, config.Supervisor.LockFile)

	// Per-service defaults
	assert.Equal(t, filepath.Join("logs", "api.log"), config.Services[0].LogFile)
	assert.Equal(t, "uvicorn", config.Services[0].ProcessPattern)
}

func TestLoadConfigFromFile_MissingFile(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestLoadConfigFromFile_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "services: [::not yaml::")
	_, err := LoadConfigFromFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		config := &Config{
			Services: []ServiceConfig{
				{Name: "api", Command: "uvicorn", Port: 8000},
				{Name: "frontend", Command: "streamlit", Port: 8501},
			},
		}
		setConfigDefaults(config)
		return config
	}

	assert.NoError(t, ValidateConfig(base()))

	t.Run("nil config", func(t *testing.T) {
		assert.Error(t, ValidateConfig(nil))
	})

	t.Run("no services", func(t *testing.T) {
		config := base()
		config.Services = nil
		assert.Error(t, ValidateConfig(config))
	})

	t.Run("missing name", func(t *testing.T) {
		config := base()
		config.Services[0].Name = ""
		assert.Error(t, ValidateConfig(config))
	})

	t.Run("missing command", func(t *testing.T) {
		config := base()
		config.Services[1].Command = ""
		assert.Error(t, ValidateConfig(config))
	})

	t.Run("invalid port", func(t *testing.T) {
		config := base()
		config.Services[0].Port = 70000
		assert.Error(t, ValidateConfig(config))
	})

	t.Run("duplicate name", func(t *testing.T) {
		config := base()
		config.Services[1].Name = "api"
		assert.Error(t, ValidateConfig(config))
	})

	t.Run("duplicate port", func(t *testing.T) {
		config := base()
		config.Services[1].Port = 8000
		assert.Error(t, ValidateConfig(config))
	})

	t.Run("bad log level", func(t *testing.T) {
		config := base()
		config.Supervisor.LogLevel = "verbose"
		assert.Error(t, ValidateConfig(config))
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, ValidateConfig(config))

	require.Len(t, config.Services, 2)
	assert.Equal(t, "api", config.Services[0].Name)
	assert.Equal(t, 8000, config.Services[0].Port)
	assert.Equal(t, "http://localhost:8000/health", config.Services[0].HealthURL)
	assert.Equal(t, "frontend", config.Services[1].Name)
	assert.Equal(t, 8501, config.Services[1].Port)
}
