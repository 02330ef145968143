package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "inspectflow.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/inspectflow"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables applied after the config files
const (
	EnvStoreBackend = "INSPECTFLOW_STORE"
	EnvRedisAddr    = "INSPECTFLOW_REDIS_ADDR"
	EnvDynamoTable  = "INSPECTFLOW_DYNAMODB_TABLE"
	EnvBlobBucket   = "INSPECTFLOW_S3_BUCKET"
	EnvAWSEndpoint  = "INSPECTFLOW_AWS_ENDPOINT"
	EnvNATSURL      = "INSPECTFLOW_NATS_URL"
	EnvLogLevel     = "INSPECTFLOW_LOG_LEVEL"
	EnvMaxAttempts  = "INSPECTFLOW_MAX_ATTEMPTS"
	EnvRetryBackoff = "INSPECTFLOW_RETRY_BACKOFF"
	EnvRequireSign  = "INSPECTFLOW_REQUIRE_SUPERVISOR_RESIGN"
	EnvAWSLocal     = "INSPECTFLOW_AWS_LOCAL"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	// environment and directory lookups are replaced in tests
	lookupEnv func(string) (string, bool)
	workDir   func() (string, error)
	homeDir   func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:    logger,
		lookupEnv: os.LookupEnv,
		workDir:   os.Getwd,
		homeDir:   os.UserHomeDir,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/inspectflow/config.yaml)
// 3. Project config (inspectflow.yaml in current or parent directories), or
// the explicit path when one is given
// 4. Environment variables
func (l *Loader) Load(explicitPath string) (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := explicitPath
	if projectConfigPath == "" {
		projectConfigPath = l.findProjectConfig()
	}
	if projectConfigPath != "" {
		projectConfig, err := LoadFromFile(projectConfigPath)
		if err != nil {
			if explicitPath != "" {
				return nil, err
			}
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		} else {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		}
	} else {
		l.logger.Debug("No project config found")
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

func (l *Loader) applyEnv(config *Config) {
	override := &Config{}
	if v, ok := l.lookupEnv(EnvStoreBackend); ok {
		override.Store.Backend = v
	}
	if v, ok := l.lookupEnv(EnvRedisAddr); ok {
		override.Store.Redis.Addr = v
	}
	if v, ok := l.lookupEnv(EnvDynamoTable); ok {
		override.Store.DynamoDB.Table = v
	}
	if v, ok := l.lookupEnv(EnvBlobBucket); ok {
		override.Blobs.Bucket = v
	}
	if v, ok := l.lookupEnv(EnvAWSEndpoint); ok {
		override.AWS.Endpoint = v
	}
	if v, ok := l.lookupEnv(EnvNATSURL); ok {
		override.NATS.URL = v
	}
	if v, ok := l.lookupEnv(EnvLogLevel); ok {
		override.LogLevel = v
	}
	if v, ok := l.lookupEnv(EnvMaxAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			l.invalidEnv(EnvMaxAttempts, v)
		} else {
			override.Engine.MaxAttempts = n
		}
	}
	if v, ok := l.lookupEnv(EnvRetryBackoff); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			l.invalidEnv(EnvRetryBackoff, v)
		} else {
			override.Engine.RetryBackoff = &d
		}
	}
	override.Engine.RequireSupervisorResign = l.boolEnv(EnvRequireSign)
	override.AWS.Local = l.boolEnv(EnvAWSLocal)
	config.Merge(override)
}

// boolEnv returns nil when name is unset or not a boolean
func (l *Loader) boolEnv(name string) *bool {
	v, ok := l.lookupEnv(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.invalidEnv(name, v)
		return nil
	}
	return &b
}

func (l *Loader) invalidEnv(name, value string) {
	l.logger.Warn("Ignoring invalid environment value", slog.String("name", name), slog.String("value", value))
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for inspectflow.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
