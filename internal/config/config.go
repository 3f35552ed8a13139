package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/usageland/internal/storage"
	"github.com/dunamismax/usageland/internal/usage"
	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type APIConfig struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
}

func (a APIConfig) ClientConfig() usage.Config {
	return usage.Config{
		BaseURL:           a.BaseURL,
		Token:             a.Token,
		Timeout:           a.Timeout,
		MaxAttempts:       a.MaxAttempts,
		InitialBackoff:    a.InitialBackoff,
		MaxBackoff:        a.MaxBackoff,
		RequestsPerSecond: a.RequestsPerSecond,
	}
}

type StorageConfig struct {
	Driver           string
	ConnectionString string
	Container        string
	Prefix           string
	LocalDir         string
	Endpoint         string
	AccessKey        string
	SecretKey        string
	Region           string
	UseSSL           bool
}

func (s StorageConfig) WriterConfig() storage.Config {
	return storage.Config{
		Driver:           s.Driver,
		ConnectionString: s.ConnectionString,
		Container:        s.Container,
		LocalDir:         s.LocalDir,
		Endpoint:         s.Endpoint,
		Access:           s.AccessKey,
		Secret:           s.SecretKey,
		Region:           s.Region,
		UseSSL:           s.UseSSL,
	}
}

type TelemetryConfig struct {
	TraceExporter  string
	OTLPEndpoint   string
	OTLPInsecure   bool
	PushgatewayURL string
}

type LogConfig struct {
	Level  string
	Format string
}

// Keys maps each setting to the environment variable it is read from.
var Keys = map[string]string{
	"api.base_url":            "USAGE_API_BASE_URL",
	"api.token":               "USAGE_API_TOKEN",
	"api.timeout":             "USAGE_API_TIMEOUT",
	"api.max_attempts":        "USAGE_API_MAX_ATTEMPTS",
	"api.initial_backoff":     "USAGE_API_INITIAL_BACKOFF",
	"api.max_backoff":         "USAGE_API_MAX_BACKOFF",
	"api.rps":                 "USAGE_API_RPS",
	"storage.driver":          "STORAGE_DRIVER",
	"storage.connection":      "AZURE_STORAGE_CONNECTION_STRING",
	"storage.container":       "STORAGE_CONTAINER",
	"storage.prefix":          "STORAGE_PREFIX",
	"storage.local_dir":       "STORAGE_LOCAL_DIR",
	"storage.endpoint":        "MINIO_ENDPOINT",
	"storage.access_key":      "MINIO_ACCESS_KEY",
	"storage.secret_key":      "MINIO_SECRET_KEY",
	"storage.region":          "MINIO_REGION",
	"storage.use_ssl":         "MINIO_USE_SSL",
	"telemetry.exporter":      "OTEL_TRACES_EXPORTER",
	"telemetry.otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.otlp_insecure": "OTEL_EXPORTER_OTLP_INSECURE",
	"telemetry.pushgateway":   "PUSHGATEWAY_URL",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
}

// NewViper returns a viper instance with defaults and env bindings applied.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("api.base_url", usage.DefaultBaseURL)
	v.SetDefault("api.timeout", time.Duration(0))
	v.SetDefault("api.max_attempts", 1)
	v.SetDefault("api.initial_backoff", time.Second)
	v.SetDefault("api.max_backoff", 30*time.Second)
	v.SetDefault("api.rps", 0.0)
	v.SetDefault("storage.driver", storage.DriverAzure)
	v.SetDefault("storage.container", storage.DefaultContainer)
	v.SetDefault("storage.prefix", "raw/product_usage")
	v.SetDefault("storage.local_dir", "./.usageland-output")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	for key, envName := range Keys {
		if err := v.BindEnv(key, envName); err != nil {
			panic(fmt.Sprintf("bind env %s: %v", envName, err))
		}
	}
	return v
}

// ReadFile merges settings from a config file (yaml, toml, json or .env).
func ReadFile(v *viper.Viper, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	// A .env file stores settings under their variable names. They rank
	// below the process environment and flags, like any config file value.
	for key, envName := range Keys {
		name := strings.ToLower(envName)
		if v.InConfig(name) {
			v.SetDefault(key, v.Get(name))
		}
	}
	return nil
}

func Load(v *viper.Viper) Config {
	return Config{
		API: APIConfig{
			BaseURL:           v.GetString("api.base_url"),
			Token:             v.GetString("api.token"),
			Timeout:           v.GetDuration("api.timeout"),
			MaxAttempts:       v.GetInt("api.max_attempts"),
			InitialBackoff:    v.GetDuration("api.initial_backoff"),
			MaxBackoff:        v.GetDuration("api.max_backoff"),
			RequestsPerSecond: v.GetFloat64("api.rps"),
		},
		Storage: StorageConfig{
			Driver:           v.GetString("storage.driver"),
			ConnectionString: v.GetString("storage.connection"),
			Container:        v.GetString("storage.container"),
			Prefix:           v.GetString("storage.prefix"),
			LocalDir:         v.GetString("storage.local_dir"),
			Endpoint:         v.GetString("storage.endpoint"),
			AccessKey:        v.GetString("storage.access_key"),
			SecretKey:        v.GetString("storage.secret_key"),
			Region:           v.GetString("storage.region"),
			UseSSL:           v.GetBool("storage.use_ssl"),
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  v.GetString("telemetry.exporter"),
			OTLPEndpoint:   v.GetString("telemetry.otlp_endpoint"),
			OTLPInsecure:   v.GetBool("telemetry.otlp_insecure"),
			PushgatewayURL: v.GetString("telemetry.pushgateway"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.Token) == "" {
		errs = append(errs, fmt.Errorf("%s is required", Keys["api.token"]))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", storage.DriverAzure:
		if strings.TrimSpace(c.Storage.ConnectionString) == "" {
			errs = append(errs, fmt.Errorf("%s is required for the azure driver", Keys["storage.connection"]))
		}
	case storage.DriverMinio:
		if strings.TrimSpace(c.Storage.AccessKey) == "" || strings.TrimSpace(c.Storage.SecretKey) == "" {
			errs = append(errs, fmt.Errorf("%s and %s are required for the minio driver", Keys["storage.access_key"], Keys["storage.secret_key"]))
		}
	case storage.DriverFile, storage.DriverMem:
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver))
	}

	if c.API.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", Keys["api.max_attempts"]))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", Keys["api.timeout"]))
	}
	return errors.Join(errs...)
}
