package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deploy-tools/depman-go/pkg/errors"
)

// Config represents the top-level configuration file structure
type Config struct {
	Supervisor SupervisorOptions `yaml:"supervisor"`
	Services   []ServiceConfig   `yaml:"services"`
}

// SupervisorOptions represents deployment-level configuration
type SupervisorOptions struct {
	RegistryDir        string        `yaml:"registry_dir,omitempty"`
	LockFile           string        `yaml:"lock_file,omitempty"`
	LogLevel           string        `yaml:"log_level,omitempty"`
	LogFile            string        `yaml:"log_file,omitempty"`
	StopGraceTimeout   time.Duration `yaml:"stop_grace_timeout,omitempty"`
	PortReleaseTimeout time.Duration `yaml:"port_release_timeout,omitempty"`
	ReadinessTimeout   time.Duration `yaml:"readiness_timeout,omitempty"`
	ReadinessInterval  time.Duration `yaml:"readiness_interval,omitempty"`
	HealthAttempts     int           `yaml:"health_attempts,omitempty"`
	HealthRetryDelay   time.Duration `yaml:"health_retry_delay,omitempty"`
	SkipHealthCheck    bool          `yaml:"skip_health_check,omitempty"`
}

// ServiceConfig represents a single managed service
type ServiceConfig struct {
	Name             string        `yaml:"name"`
	Command          string        `yaml:"command"`
	Args             []string      `yaml:"args,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	LogFile          string        `yaml:"log_file,omitempty"`
	Port             int           `yaml:"port"`
	ReadinessURL     string        `yaml:"readiness_url,omitempty"`
	HealthURL        string        `yaml:"health_url,omitempty"`
	ProcessPattern   string        `yaml:"process_pattern,omitempty"`
	SettleDelay      time.Duration `yaml:"settle_delay,omitempty"`
}

// DefaultConfig returns the stock two-service deployment: an API backend
// with an HTTP health endpoint and a web frontend probed at its root.
func DefaultConfig() *Config {
	config := &Config{
		Services: []ServiceConfig{
			{
				Name:         "api",
				Command:      "uvicorn",
				Args:         []string{"app.main:app", "--host", "0.0.0.0", "--port", "8000"},
				Port:         8000,
				ReadinessURL: "http://localhost:8000/health",
				HealthURL:    "http://localhost:8000/health",
			},
			{
				Name:         "frontend",
				Command:      "streamlit",
				Args:         []string{"run", "app/ui.py", "--server.port", "8501", "--server.headless", "true"},
				Port:         8501,
				ReadinessURL: "http://localhost:8501/",
				HealthURL:    "http://localhost:8501/",
			},
		},
	}
	setConfigDefaults(config)
	return config
}

// LoadConfigFromFile loads supervisor configuration from a YAML file
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError("configuration file not found", err).WithContext("filename", filename)
		}
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	setConfigDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *Config) {
	if config.Supervisor.RegistryDir == "" {
		config.Supervisor.RegistryDir = filepath.Join(".depman", "pids")
	}
	if config.Supervisor.LockFile == "" {
		config.Supervisor.LockFile = filepath.Join(".depman", "deploy.lock")
	}
	if config.Supervisor.LogLevel == "" {
		config.Supervisor.LogLevel = "info"
	}
	if config.Supervisor.StopGraceTimeout == 0 {
		config.Supervisor.StopGraceTimeout = 10 * time.Second
	}
	if config.Supervisor.PortReleaseTimeout == 0 {
		config.Supervisor.PortReleaseTimeout = 15 * time.Second
	}
	if config.Supervisor.ReadinessTimeout == 0 {
		config.Supervisor.ReadinessTimeout = 60 * time.Second
	}
	if config.Supervisor.ReadinessInterval == 0 {
		config.Supervisor.ReadinessInterval = 1 * time.Second
	}
	if config.Supervisor.HealthAttempts == 0 {
		config.Supervisor.HealthAttempts = 3
	}
	if config.Supervisor.HealthRetryDelay == 0 {
		config.Supervisor.HealthRetryDelay = 5 * time.Second
	}

	for i := range config.Services {
		service := &config.Services[i]
		if service.LogFile == "" && service.Name != "" {
			service.LogFile = filepath.Join("logs", service.Name+".log")
		}
		if service.ProcessPattern == "" {
			service.ProcessPattern = service.Command
		}
	}
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateSupervisorOptions(&config.Supervisor); err != nil {
		return errors.NewValidationError("invalid supervisor configuration", err)
	}

	if len(config.Services) == 0 {
		return errors.NewValidationError("at least one service must be configured", nil)
	}

	seenNames := make(map[string]int)
	seenPorts := make(map[int]string)
	for i, service := range config.Services {
		if service.Name == "" {
			return errors.NewValidationError(
				fmt.Sprintf("service at index %d has no name", i), nil)
		}
		if service.Command == "" {
			return errors.NewValidationError(
				fmt.Sprintf("service '%s' has no command", service.Name), nil).
				WithContext("service", service.Name)
		}
		if service.Port <= 0 || service.Port > 65535 {
			return errors.NewValidationError(
				fmt.Sprintf("service '%s' has invalid port: %d", service.Name, service.Port), nil).
				WithContext("valid_range", "1-65535")
		}

		if prevIndex, exists := seenNames[service.Name]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("duplicate service name '%s' found at indices %d and %d", service.Name, prevIndex, i), nil)
		}
		seenNames[service.Name] = i

		if owner, exists := seenPorts[service.Port]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("services '%s' and '%s' both claim port %d", owner, service.Name, service.Port), nil)
		}
		seenPorts[service.Port] = service.Name
	}

	return nil
}

func validateSupervisorOptions(options *SupervisorOptions) error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if options.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if options.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			return errors.NewValidationError(
				fmt.Sprintf("invalid log level: %s", options.LogLevel), nil).
				WithContext("valid_levels", "debug, info, warn, error")
		}
	}

	if options.StopGraceTimeout < 0 || options.PortReleaseTimeout < 0 ||
		options.ReadinessTimeout < 0 || options.ReadinessInterval < 0 ||
		options.HealthRetryDelay < 0 {
		return errors.NewValidationError("timeouts cannot be negative", nil)
	}
	if options.HealthAttempts < 0 {
		return errors.NewValidationError("health_attempts cannot be negative", nil)
	}

	return nil
}
