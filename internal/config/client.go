package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL     = "http://localhost:8000"
	defaultRemoteTimeout = 5 * time.Second
)

// ClientConfig holds the settings of the budget CLI. Values come from an
// optional YAML or TOML file, then BUDGET_* environment overrides.
type ClientConfig struct {
	ServerURL     string
	APIKey        string
	DeviceID      string
	Username      string
	DeviceName    string
	Timezone      string
	CachePath     string
	RemoteTimeout time.Duration
	DefaultBudget decimal.Decimal
}

// clientFile is the on-disk shape of the client configuration
type clientFile struct {
	ServerURL     string `yaml:"server_url" toml:"server_url"`
	APIKey        string `yaml:"api_key" toml:"api_key"`
	DeviceID      string `yaml:"device_id" toml:"device_id"`
	Username      string `yaml:"username" toml:"username"`
	DeviceName    string `yaml:"device_name" toml:"device_name"`
	Timezone      string `yaml:"timezone" toml:"timezone"`
	CachePath     string `yaml:"cache_path" toml:"cache_path"`
	RemoteTimeout string `yaml:"remote_timeout" toml:"remote_timeout"`
	DefaultBudget string `yaml:"default_budget" toml:"default_budget"`
}

// ClientLoader loads the client configuration and reloads it on demand
type ClientLoader struct {
	path    string
	mu      sync.RWMutex
	current *ClientConfig
}

// NewClientLoader creates a loader for the given file path. An empty path
// means environment variables and defaults only.
func NewClientLoader(path string) *ClientLoader {
	return &ClientLoader{path: path}
}

// Current returns the last successfully loaded configuration
func (l *ClientLoader) Current() *ClientConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Reload re-reads the file and environment. On error the previous
// configuration stays current.
func (l *ClientLoader) Reload() (*ClientConfig, error) {
	cfg, err := LoadClient(l.path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// LoadClient reads the client configuration from path (optional) and the environment
func LoadClient(path string) (*ClientConfig, error) {
	var file clientFile
	if path != "" {
		if err := readClientFile(path, &file); err != nil {
			return nil, err
		}
	}
	applyClientEnv(&file)

	cfg := &ClientConfig{
		ServerURL:     strings.TrimRight(orDefault(file.ServerURL, defaultServerURL), "/"),
		APIKey:        file.APIKey,
		DeviceID:      file.DeviceID,
		Username:      file.Username,
		DeviceName:    file.DeviceName,
		Timezone:      orDefault(file.Timezone, "Local"),
		CachePath:     file.CachePath,
		RemoteTimeout: defaultRemoteTimeout,
		DefaultBudget: decimal.NewFromInt(1000),
	}
	if cfg.CachePath == "" {
		cfg.CachePath = defaultCachePath()
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = hostDeviceID()
	}

	if file.RemoteTimeout != "" {
		timeout, err := time.ParseDuration(file.RemoteTimeout)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("invalid remote_timeout %q", file.RemoteTimeout)
		}
		cfg.RemoteTimeout = timeout
	}
	if file.DefaultBudget != "" {
		amount, err := decimal.NewFromString(file.DefaultBudget)
		if err != nil || amount.IsNegative() {
			return nil, fmt.Errorf("invalid default_budget %q", file.DefaultBudget)
		}
		cfg.DefaultBudget = amount
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location returns the device time zone
func (c *ClientConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func readClientFile(path string, file *clientFile) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, file); err != nil {
			return fmt.Errorf("error parsing TOML file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, file); err != nil {
			return fmt.Errorf("error parsing YAML file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
	return nil
}

func applyClientEnv(file *clientFile) {
	overrides := map[string]*string{
		"BUDGET_SERVER_URL":     &file.ServerURL,
		"BUDGET_API_KEY":        &file.APIKey,
		"BUDGET_DEVICE_ID":      &file.DeviceID,
		"BUDGET_USERNAME":       &file.Username,
		"BUDGET_DEVICE_NAME":    &file.DeviceName,
		"BUDGET_TIMEZONE":       &file.Timezone,
		"BUDGET_CACHE_PATH":     &file.CachePath,
		"BUDGET_REMOTE_TIMEOUT": &file.RemoteTimeout,
		"BUDGET_DEFAULT_BUDGET": &file.DefaultBudget,
	}
	for key, target := range overrides {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "budget-tracker", "cache.db")
}

// hostDeviceID derives a stable device id from the host name
func hostDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(host)).String()
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
