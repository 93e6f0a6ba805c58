package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Inference back-end configuration
	Backends BackendsConfig `mapstructure:"backends"`

	// Submission configuration
	Submission SubmissionConfig `mapstructure:"submission"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Notification configuration
	Notifications NotificationsConfig `mapstructure:"notifications"`

	// Tracing configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	// Port is the HTTP server port
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// MaxUploadBytes caps multipart uploads
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// AllowedOrigins lists CORS origins; empty allows any
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BackendsConfig holds the base URLs of the inference back-ends
type BackendsConfig struct {
	// DefaultURL is used for any method without a more specific URL
	DefaultURL string `mapstructure:"default_url"`

	// URLs maps a method name to its base URL
	URLs map[string]string `mapstructure:"urls"`

	// RequestTimeout bounds each back-end call; zero disables it
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SubmissionConfig holds configuration for the submission coordinator and poller
type SubmissionConfig struct {
	// Concurrency is the maximum number of image requests in flight per asset
	Concurrency int `mapstructure:"concurrency"`

	// PollInterval is the delay between video status polls
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// DefaultMethods is the selection used when a request names none; empty means every method with a back-end
	DefaultMethods []string `mapstructure:"default_methods"`

	// FrameGuard rejects overlong videos before submission
	FrameGuard FrameGuardConfig `mapstructure:"frame_guard"`
}

// FrameGuardConfig holds configuration for the local video length check
type FrameGuardConfig struct {
	// Enabled turns the guard on
	Enabled bool `mapstructure:"enabled"`

	// MaxFrames is the largest accepted estimated frame count
	MaxFrames int `mapstructure:"max_frames"`

	// AssumedFPS converts duration to an estimated frame count
	AssumedFPS float64 `mapstructure:"assumed_fps"`

	// FFProbeBinary is the ffprobe executable used to read durations
	FFProbeBinary string `mapstructure:"ffprobe_binary"`
}

// StorageConfig holds configuration for storage repositories
type StorageConfig struct {
	// SessionStore is where sessions and payloads live (memory, redis)
	SessionStore string `mapstructure:"session_store"`

	// PrefsStore is where preferences live (memory, redis, file)
	PrefsStore string `mapstructure:"prefs_store"`

	// PrefsPath is the TOML file used by the file preference store
	PrefsPath string `mapstructure:"prefs_path"`

	// Redis configuration
	Redis RedisConfig `mapstructure:"redis"`

	// SessionTTL is the age after which the janitor purges a session
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// PayloadTTL is the expiry applied to payloads in redis
	PayloadTTL time.Duration `mapstructure:"payload_ttl"`

	// JanitorSchedule is a cron expression for the purge job
	JanitorSchedule string `mapstructure:"janitor_schedule"`
}

// RedisConfig holds configuration for Redis
type RedisConfig struct {
	// Address is the Redis server address
	Address string `mapstructure:"address"`

	// Password is the Redis password
	Password string `mapstructure:"password"`

	// DB is the Redis database number
	DB int `mapstructure:"db"`
}

// NotificationsConfig holds configuration for user notifications and forwarding
type NotificationsConfig struct {
	// DismissAfter is how long a notification stays visible
	DismissAfter time.Duration `mapstructure:"dismiss_after"`

	// Broker forwards events to a message broker (none, kafka, rabbitmq)
	Broker string `mapstructure:"broker"`

	// Brokers is the kafka bootstrap server list
	Brokers []string `mapstructure:"brokers"`

	// URL is the rabbitmq connection URL
	URL string `mapstructure:"url"`

	// Topic receives the forwarded events
	Topic string `mapstructure:"topic"`
}

// TelemetryConfig holds configuration for tracing
type TelemetryConfig struct {
	// Exporter is none, stdout or otlp
	Exporter string `mapstructure:"exporter"`

	// Endpoint is the OTLP gRPC collector address
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig holds configuration for logging
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`
}

var AppConfig *Config

// LoadConfig loads configuration from a file, a .env file and environment variables
func LoadConfig(configPath string) error {
	config, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = config
	return nil
}

// Load reads the configuration without touching AppConfig
func Load(configPath string) (*Config, error) {
	// A missing .env is not an error
	_ = godotenv.Load()

	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set up environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load configuration file if specified
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_bytes", 200<<20)
	v.SetDefault("server.allowed_origins", []string{})

	// Back-end defaults
	v.SetDefault("backends.default_url", "")
	v.SetDefault("backends.request_timeout", time.Duration(0))

	// Submission defaults
	v.SetDefault("submission.concurrency", 3)
	v.SetDefault("submission.poll_interval", 4*time.Second)
	v.SetDefault("submission.default_methods", []string{})
	v.SetDefault("submission.frame_guard.enabled", false)
	v.SetDefault("submission.frame_guard.max_frames", 250)
	v.SetDefault("submission.frame_guard.assumed_fps", 24.0)
	v.SetDefault("submission.frame_guard.ffprobe_binary", "ffprobe")

	// Storage defaults
	v.SetDefault("storage.session_store", "memory")
	v.SetDefault("storage.prefs_store", "file")
	v.SetDefault("storage.prefs_path", "bgbye-prefs.toml")
	v.SetDefault("storage.redis.address", "localhost:6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.session_ttl", time.Hour)
	v.SetDefault("storage.payload_ttl", 2*time.Hour)
	v.SetDefault("storage.janitor_schedule", "@every 10m")

	// Notification defaults
	v.SetDefault("notifications.dismiss_after", 4*time.Second)
	v.SetDefault("notifications.broker", "none")
	v.SetDefault("notifications.topic", "bgbye.events")

	// Telemetry defaults
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload bytes: %d", c.Server.MaxUploadBytes)
	}

	if c.Submission.Concurrency <= 0 {
		return fmt.Errorf("invalid submission concurrency: %d", c.Submission.Concurrency)
	}

	if c.Submission.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Submission.PollInterval)
	}

	if c.Backends.RequestTimeout < 0 {
		return fmt.Errorf("invalid request timeout: %s", c.Backends.RequestTimeout)
	}

	if fg := c.Submission.FrameGuard; fg.Enabled {
		if fg.MaxFrames <= 0 {
			return fmt.Errorf("invalid frame guard max frames: %d", fg.MaxFrames)
		}
		if fg.AssumedFPS <= 0 {
			return fmt.Errorf("invalid frame guard fps: %v", fg.AssumedFPS)
		}
	}

	// Validate storage configuration
	switch c.Storage.SessionStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session store %q", c.Storage.SessionStore)
	}

	switch c.Storage.PrefsStore {
	case "memory", "redis":
	case "file":
		if c.Storage.PrefsPath == "" {
			return fmt.Errorf("prefs path is required when prefs store is file")
		}
	default:
		return fmt.Errorf("unknown prefs store %q", c.Storage.PrefsStore)
	}

	if (c.Storage.SessionStore == "redis" || c.Storage.PrefsStore == "redis") && c.Storage.Redis.Address == "" {
		return fmt.Errorf("redis address is required when a redis store is selected")
	}

	if c.Storage.SessionTTL <= 0 {
		return fmt.Errorf("invalid session ttl: %s", c.Storage.SessionTTL)
	}

	if c.Notifications.DismissAfter <= 0 {
		return fmt.Errorf("invalid notification dismiss delay: %s", c.Notifications.DismissAfter)
	}

	switch c.Notifications.Broker {
	case "", "none":
	case "kafka":
		if len(c.Notifications.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when broker is kafka")
		}
	case "rabbitmq":
		if c.Notifications.URL == "" {
			return fmt.Errorf("rabbitmq url is required when broker is rabbitmq")
		}
	default:
		return fmt.Errorf("unknown broker %q", c.Notifications.Broker)
	}

	switch c.Telemetry.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown telemetry exporter %q", c.Telemetry.Exporter)
	}

	return nil
}

// BaseURLs resolves a base URL for each method in the catalogue. An explicit
// backends.urls entry wins over the method's environment variable, which
// wins over backends.default_url.
func (c *Config) BaseURLs(catalogue []models.MethodInfo) map[models.Method]string {
	out := make(map[models.Method]string, len(catalogue))
	for _, m := range catalogue {
		if u := lookupURL(c.Backends.URLs, string(m.Name)); u != "" {
			out[m.Name] = u
			continue
		}
		if u := strings.TrimSpace(os.Getenv(m.URLEnvKey)); u != "" {
			out[m.Name] = u
			continue
		}
		if c.Backends.DefaultURL != "" {
			out[m.Name] = c.Backends.DefaultURL
		}
	}
	return out
}

// lookupURL matches method names case-insensitively; viper lower-cases map keys.
func lookupURL(urls map[string]string, name string) string {
	if u, ok := urls[name]; ok {
		return strings.TrimSpace(u)
	}
	for k, u := range urls {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(u)
		}
	}
	return ""
}

// DefaultSelection returns the configured default methods, or every
// registry method that has a back-end when none are configured.
func (c *Config) DefaultSelection(registry *models.Registry) []models.Method {
	if len(c.Submission.DefaultMethods) > 0 {
		return models.ParseMethods(strings.Join(c.Submission.DefaultMethods, ","))
	}
	var out []models.Method
	for _, m := range registry.Methods() {
		if registry.Available(m) {
			out = append(out, m)
		}
	}
	return out
}
