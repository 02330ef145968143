// Package config provides configuration loading for inspectflow deployments.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anggasct/inspectflow"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

// Blob backends
const (
	BlobsNone   = "none"
	BlobsMemory = "memory"
	BlobsS3     = "s3"
)

// Config represents the complete inspectflow configuration
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Engine   EngineConfig  `yaml:"engine"`
	Store    StoreConfig   `yaml:"store"`
	Blobs    BlobConfig    `yaml:"blobs"`
	AWS      AWSConfig     `yaml:"aws"`
	NATS     NATSConfig    `yaml:"nats"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// EngineConfig configures workflow policy and optimistic retries
type EngineConfig struct {
	// MaxAttempts bounds the compute-and-write cycle (default: 5)
	MaxAttempts int `yaml:"max_attempts"`
	// RetryBackoff is the base delay between conflicting attempts; 0 retries at once
	RetryBackoff *time.Duration `yaml:"retry_backoff"`
	// RejectPolicy is "edit_rights" or "at_or_after_stage"
	RejectPolicy string `yaml:"reject_policy"`
	// AllowResign permits overwriting a signature inside its edit window (default: true)
	AllowResign *bool `yaml:"allow_resign"`
	// RequireSupervisorResign forces a fresh Supervisor signature on resubmit
	RequireSupervisorResign *bool `yaml:"require_supervisor_resign"`
}

// Backoff returns the configured retry delay, or the engine default when unset
func (e EngineConfig) Backoff() time.Duration {
	if e.RetryBackoff == nil {
		return inspectflow.DefaultRetryBackoff
	}
	return *e.RetryBackoff
}

// StoreConfig selects and configures the submission store
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// RedisConfig configures the Redis store
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DynamoDBConfig configures the DynamoDB store
type DynamoDBConfig struct {
	Table string `yaml:"table"`
}

// BlobConfig selects where uploaded signature images go
type BlobConfig struct {
	Backend string `yaml:"backend"`
	Bucket  string `yaml:"bucket"`
}

// AWSConfig is shared by the DynamoDB store and the S3 blob store
type AWSConfig struct {
	Region string `yaml:"region"`
	// Endpoint points the SDK at LocalStack or another compatible service
	Endpoint string `yaml:"endpoint"`
	// Local uses static test credentials
	Local *bool `yaml:"local"`
}

// UseLocal reports whether static test credentials are configured
func (a AWSConfig) UseLocal() bool {
	return a.Local != nil && *a.Local
}

// NATSConfig configures JetStream notifications. Empty URL disables them.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	policy := inspectflow.DefaultPolicy()
	backoff := inspectflow.DefaultRetryBackoff
	return &Config{
		LogLevel: "info",
		Engine: EngineConfig{
			MaxAttempts:             inspectflow.DefaultMaxAttempts,
			RetryBackoff:            &backoff,
			RejectPolicy:            string(policy.RejectPolicy),
			AllowResign:             &policy.AllowResign,
			RequireSupervisorResign: &policy.RequireSupervisorResign,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "inspectflow:",
			},
			DynamoDB: DynamoDBConfig{
				Table: "inspection-submissions",
			},
		},
		Blobs: BlobConfig{
			Backend: BlobsMemory,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		NATS: NATSConfig{
			Stream:        "INSPECTFLOW",
			SubjectPrefix: "inspectflow",
			Timeout:       5 * time.Second,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts must be at least 1")
	}
	if c.Engine.Backoff() < 0 {
		return fmt.Errorf("engine.retry_backoff cannot be negative")
	}
	if _, err := inspectflow.ParseRejectPolicy(c.Engine.RejectPolicy); err != nil {
		return fmt.Errorf("engine.reject_policy: %w", err)
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	case StoreDynamoDB:
		if c.Store.DynamoDB.Table == "" {
			return fmt.Errorf("store.dynamodb.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, redis, dynamodb", c.Store.Backend)
	}

	switch c.Blobs.Backend {
	case BlobsNone, BlobsMemory:
	case BlobsS3:
		if c.Blobs.Bucket == "" {
			return fmt.Errorf("blobs.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("blobs.backend %q is not one of none, memory, s3", c.Blobs.Backend)
	}

	if c.NATS.URL != "" && c.NATS.Stream == "" {
		return fmt.Errorf("nats.stream is required when nats.url is set")
	}
	return nil
}

// Policy converts the engine section into a workflow policy
func (c *Config) Policy() (inspectflow.Policy, error) {
	rp, err := inspectflow.ParseRejectPolicy(c.Engine.RejectPolicy)
	if err != nil {
		return inspectflow.Policy{}, err
	}
	policy := inspectflow.DefaultPolicy()
	policy.RejectPolicy = rp
	if c.Engine.AllowResign != nil {
		policy.AllowResign = *c.Engine.AllowResign
	}
	if c.Engine.RequireSupervisorResign != nil {
		policy.RequireSupervisorResign = *c.Engine.RequireSupervisorResign
	}
	return policy, nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one. Other takes precedence for
// non-zero values and for every pointer field it sets, so a later layer can
// switch a flag off or set the backoff to zero.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}

	// Engine
	if other.Engine.MaxAttempts != 0 {
		c.Engine.MaxAttempts = other.Engine.MaxAttempts
	}
	if other.Engine.RetryBackoff != nil {
		c.Engine.RetryBackoff = durationPtr(*other.Engine.RetryBackoff)
	}
	if other.Engine.RejectPolicy != "" {
		c.Engine.RejectPolicy = other.Engine.RejectPolicy
	}
	if other.Engine.AllowResign != nil {
		c.Engine.AllowResign = boolPtr(*other.Engine.AllowResign)
	}
	if other.Engine.RequireSupervisorResign != nil {
		c.Engine.RequireSupervisorResign = boolPtr(*other.Engine.RequireSupervisorResign)
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Redis.Addr != "" {
		c.Store.Redis.Addr = other.Store.Redis.Addr
	}
	if other.Store.Redis.Password != "" {
		c.Store.Redis.Password = other.Store.Redis.Password
	}
	if other.Store.Redis.DB != 0 {
		c.Store.Redis.DB = other.Store.Redis.DB
	}
	if other.Store.Redis.Prefix != "" {
		c.Store.Redis.Prefix = other.Store.Redis.Prefix
	}
	if other.Store.DynamoDB.Table != "" {
		c.Store.DynamoDB.Table = other.Store.DynamoDB.Table
	}

	// Blobs
	if other.Blobs.Backend != "" {
		c.Blobs.Backend = other.Blobs.Backend
	}
	if other.Blobs.Bucket != "" {
		c.Blobs.Bucket = other.Blobs.Bucket
	}

	// AWS
	if other.AWS.Region != "" {
		c.AWS.Region = other.AWS.Region
	}
	if other.AWS.Endpoint != "" {
		c.AWS.Endpoint = other.AWS.Endpoint
	}
	if other.AWS.Local != nil {
		c.AWS.Local = boolPtr(*other.AWS.Local)
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Stream != "" {
		c.NATS.Stream = other.NATS.Stream
	}
	if other.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = other.NATS.SubjectPrefix
	}
	if other.NATS.Timeout != 0 {
		c.NATS.Timeout = other.NATS.Timeout
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
	if other.Metrics.Path != "" {
		c.Metrics.Path = other.Metrics.Path
	}
}

func boolPtr(v bool) *bool {
	return &v
}

func durationPtr(v time.Duration) *time.Duration {
	return &v
}
