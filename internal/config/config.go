package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"tracker/internal/deadletter"
	"tracker/internal/storage"
	"tracker/pkg/conn"
	"tracker/pkg/exception"
	"tracker/pkg/websocket"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gopkg.in/yaml.v3"
)

// Config is the full agent configuration.
type Config struct {
	Feed       FeedConfig       `yaml:"feed"`
	Health     HealthConfig     `yaml:"health"`
	Store      StoreConfig      `yaml:"store"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Obs        ObsConfig        `yaml:"obs"`
	LogLevel   string           `yaml:"log_level"`
}

// FeedConfig describes the websocket feed and the subscription policy.
type FeedConfig struct {
	APIKey         string        `yaml:"api_key"`
	Chain          string        `yaml:"chain"`
	BaseURL        string        `yaml:"base_url"`
	Subprotocol    string        `yaml:"subprotocol"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	BatchSize      int           `yaml:"batch_size"`
}

// HealthConfig is the liveness listener.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig selects the object store backend.
type StoreConfig struct {
	Backend               string        `yaml:"backend"`
	Bucket                string        `yaml:"bucket"`
	AzureConnectionString string        `yaml:"azure_connection_string"`
	AzureAccountName      string        `yaml:"azure_account_name"`
	AzureAccountKey       string        `yaml:"azure_account_key"`
	PostgresDSN           string        `yaml:"postgres_dsn"`
	Timeout               time.Duration `yaml:"timeout"`
	Attempts              int           `yaml:"attempts"`
	RetryDelay            time.Duration `yaml:"retry_delay"`
}

// DeadLetterConfig enables spilling failed writes to disk when Dir is set.
type DeadLetterConfig struct {
	Dir string `yaml:"dir"`
}

// ObsConfig controls the periodic stats log and continuous profiling. Zero
// values disable both.
type ObsConfig struct {
	StatsInterval          time.Duration `yaml:"stats_interval"`
	PyroscopeServerAddress string        `yaml:"pyroscope_server_address"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Feed: FeedConfig{
			Chain:          "solana",
			BaseURL:        "wss://public-api.birdeye.so/socket",
			Subprotocol:    "echo-protocol",
			ReconnectDelay: websocket.DefaultReconnectDelay,
			BatchSize:      100,
		},
		Health: HealthConfig{Port: 8080},
		Store: StoreConfig{
			Backend:    storage.BackendGCS,
			Bucket:     "birdeye-tracker-bucket",
			Timeout:    30 * time.Second,
			Attempts:   1,
			RetryDelay: 500 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// Load reads the configuration and validates it for the tracker.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read applies defaults, then the YAML file at path when path is not empty,
// then environment variables. It does not validate.
func Read(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Feed.APIKey, "BIRDEYE_API_KEY")
	setString(&c.Feed.Chain, "BIRDEYE_CHAIN")
	setString(&c.Feed.BaseURL, "BIRDEYE_WS_BASE_URL")
	setString(&c.Feed.Subprotocol, "BIRDEYE_SUBPROTOCOL")
	setString(&c.Store.Backend, "STORE_BACKEND")
	setString(&c.Store.Bucket, "GCS_BUCKET_NAME")
	setString(&c.Store.AzureConnectionString, "AZURE_STORAGE_CONNECTION_STRING")
	setString(&c.Store.AzureAccountName, "AZURE_STORAGE_ACCOUNT_NAME")
	setString(&c.Store.AzureAccountKey, "AZURE_STORAGE_ACCOUNT_KEY")
	setString(&c.Store.PostgresDSN, "POSTGRES_DSN")
	setString(&c.DeadLetter.Dir, "DEADLETTER_DIR")
	setString(&c.Obs.PyroscopeServerAddress, "PYROSCOPE_SERVER_ADDRESS")
	setString(&c.LogLevel, "LOG_LEVEL")

	for _, f := range []func() error{
		func() error { return setInt(&c.Health.Port, "PORT") },
		func() error { return setInt(&c.Feed.BatchSize, "SUBSCRIBE_BATCH_SIZE") },
		func() error { return setInt(&c.Store.Attempts, "STORE_ATTEMPTS") },
		func() error { return setDuration(&c.Feed.ReconnectDelay, "RECONNECT_DELAY") },
		func() error { return setDuration(&c.Store.Timeout, "STORE_TIMEOUT") },
		func() error { return setDuration(&c.Store.RetryDelay, "STORE_RETRY_DELAY") },
		func() error { return setDuration(&c.Obs.StatsInterval, "STATS_INTERVAL") },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first unusable value. A missing API key is fatal.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Feed.APIKey) == "" {
		return exception.ErrConfigMissingAPIKey
	}
	if c.Feed.BaseURL == "" {
		return errors.Wrap(exception.ErrConfigInvalid, "feed base url is empty")
	}
	if c.Feed.Chain == "" {
		return errors.Wrap(exception.ErrConfigInvalid, "feed chain is empty")
	}
	if c.Feed.ReconnectDelay <= 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "reconnect delay must be > 0, got %s", c.Feed.ReconnectDelay)
	}
	if c.Feed.BatchSize <= 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "batch size must be > 0, got %d", c.Feed.BatchSize)
	}
	if c.Health.Port <= 0 || c.Health.Port > 65535 {
		return errors.Wrapf(exception.ErrConfigInvalid, "port out of range: %d", c.Health.Port)
	}
	if c.Obs.StatsInterval < 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "stats interval must be >= 0, got %s", c.Obs.StatsInterval)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Wrapf(exception.ErrConfigInvalid, "unknown log level %q", c.LogLevel)
	}
	return c.ValidateStore()
}

// ValidateStore checks only the store section, for tools that never dial the feed.
func (c Config) ValidateStore() error {
	switch c.Store.Backend {
	case storage.BackendGCS, storage.BackendAzure, storage.BackendPostgres, storage.BackendMemory:
	default:
		return errors.Wrapf(exception.ErrConfigInvalid, "unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend != storage.BackendMemory && c.Store.Bucket == "" {
		return errors.Wrap(exception.ErrConfigInvalid, "store bucket is empty")
	}
	if c.Store.Timeout <= 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "store timeout must be > 0, got %s", c.Store.Timeout)
	}
	if c.Store.Attempts < 1 {
		return errors.Wrapf(exception.ErrConfigInvalid, "store attempts must be >= 1, got %d", c.Store.Attempts)
	}
	if c.Store.RetryDelay < 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "store retry delay must be >= 0, got %s", c.Store.RetryDelay)
	}
	return nil
}

// Level is LogLevel parsed for the logger.
func (c Config) Level() logs.Level {
	return logs.NewLevel(c.LogLevel)
}

// FeedURL is the websocket endpoint including the API key.
func (c Config) FeedURL() (string, error) {
	return websocket.FeedURL(c.Feed.BaseURL, c.Feed.Chain, c.Feed.APIKey)
}

// HealthAddr is the liveness listen address.
func (c Config) HealthAddr() string {
	return ":" + strconv.Itoa(c.Health.Port)
}

// Storage maps the store section onto storage.Config.
func (c Config) Storage() storage.Config {
	return storage.Config{
		Backend:               c.Store.Backend,
		Namespace:             c.Store.Bucket,
		AzureConnectionString: c.Store.AzureConnectionString,
		AzureAccountName:      c.Store.AzureAccountName,
		AzureAccountKey:       c.Store.AzureAccountKey,
		Postgres:              conn.Option{ConnString: c.Store.PostgresDSN},
		Attempts:              c.Store.Attempts,
		RetryDelay:            c.Store.RetryDelay,
	}
}

// DeadLetterWriter returns the writer config, or false when spilling is disabled.
func (c Config) DeadLetterWriter() (deadletter.Config, bool) {
	if c.DeadLetter.Dir == "" {
		return deadletter.Config{}, false
	}
	return deadletter.DefaultConfig(c.DeadLetter.Dir), true
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return errors.Wrapf(exception.ErrConfigInvalid, "%s=%q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return errors.Wrapf(exception.ErrConfigInvalid, "%s=%q is not a duration", key, v)
	}
	*dst = d
	return nil
}
