package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"labelaudit/internal/labelerrors"
	"labelaudit/internal/noise"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath        string
	DetectorURL     string
	DetectorTimeout time.Duration
	SortBy          string
	PruneMethod     string
	FracNoise       float64
	ListenPort      int
	MetricsPort     int
	PushgatewayURL  string
	LogLevel        string
}

type ConfigFile struct {
	Detector struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"detector"`

	Audit struct {
		SortBy      string  `yaml:"sortBy"`
		PruneMethod string  `yaml:"pruneMethod"`
		FracNoise   float64 `yaml:"fracNoise"`
	} `yaml:"audit"`

	Server struct {
		ListenPort int `yaml:"listenPort"`
	} `yaml:"server"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		MetricsPort    int    `yaml:"metricsPort"`
		PushgatewayURL string `yaml:"pushgatewayUrl"`
		LogLevel       string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Load reads a .env file when present, then the YAML file named by
// CONFIG_FILE, falling back to environment variables only.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Detector.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}

	// Environment variables override the file
	settings := Settings{
		DataPath:        getEnvOrDefault("DATA_PATH", config.System.DataPath),
		DetectorURL:     getEnvOrDefault("DETECTOR_URL", config.Detector.URL),
		DetectorTimeout: getDurationOrDefault("DETECTOR_TIMEOUT", timeout),
		SortBy:          getEnvOrDefault("SORT_BY", orDefault(config.Audit.SortBy, string(labelerrors.SortByLikelihood))),
		PruneMethod:     getEnvOrDefault("PRUNE_METHOD", orDefault(config.Audit.PruneMethod, noise.PruneByNoiseRate)),
		FracNoise:       getFloatFromEnvOrConfig("FRAC_NOISE", config.Audit.FracNoise, 1.0),
		ListenPort:      getIntFromEnvOrConfig("LISTEN_PORT", config.Server.ListenPort, 8090),
		MetricsPort:     getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 8080),
		PushgatewayURL:  getEnvOrDefault("PUSHGATEWAY_URL", config.System.PushgatewayURL),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", orDefault(config.System.LogLevel, "info")),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:        os.Getenv("DATA_PATH"), // optional
		DetectorURL:     os.Getenv("DETECTOR_URL"),
		DetectorTimeout: getDurationOrDefault("DETECTOR_TIMEOUT", 30*time.Second),
		SortBy:          getEnvOrDefault("SORT_BY", string(labelerrors.SortByLikelihood)),
		PruneMethod:     getEnvOrDefault("PRUNE_METHOD", noise.PruneByNoiseRate),
		FracNoise:       getFloatOrDefault("FRAC_NOISE", 1.0),
		ListenPort:      getIntOrDefault("LISTEN_PORT", 8090),
		MetricsPort:     getIntOrDefault("METRICS_PORT", 8080),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"), // optional
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// AuditOptions returns the detector options configured for label audits.
func (s Settings) AuditOptions() labelerrors.Options {
	return labelerrors.Options{
		PruneMethod: s.PruneMethod,
		FracNoise:   s.FracNoise,
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// Validate checks settings changed after Load, such as command line overrides.
func Validate(settings Settings) error {
	if err := validateSettings(&settings); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	if _, err := labelerrors.ParseSortBy(settings.SortBy); err != nil {
		return err
	}

	switch settings.PruneMethod {
	case noise.PruneByNoiseRate, noise.PruneByClass, noise.PruneBoth:
	default:
		return fmt.Errorf("prune method must be one of %s, %s, %s, got %q",
			noise.PruneByNoiseRate, noise.PruneByClass, noise.PruneBoth, settings.PruneMethod)
	}

	if settings.FracNoise <= 0 || settings.FracNoise > 1 {
		return fmt.Errorf("frac noise must be in (0, 1], got %f", settings.FracNoise)
	}

	if settings.DetectorTimeout < time.Second || settings.DetectorTimeout > 10*time.Minute {
		return fmt.Errorf("detector timeout must be between 1s and 10m, got %v", settings.DetectorTimeout)
	}

	if settings.ListenPort < 1024 || settings.ListenPort > 65535 {
		return fmt.Errorf("listen port must be between 1024 and 65535, got %d", settings.ListenPort)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.ListenPort == settings.MetricsPort {
		return fmt.Errorf("listen port and metrics port must differ, both are %d", settings.ListenPort)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
