package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	appName       = "FundBoard"
	defaultDBName = "fundboard.db"
	envPrefix     = "FUNDBOARD_"
)

// Config is the server configuration: defaults, then TOML files, then FUNDBOARD_* env.
type Config struct {
	Environment string            `toml:"environment"`
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Auth        AuthConfig        `toml:"auth"`
	DataService DataServiceConfig `toml:"data_service"`
	News        NewsConfig        `toml:"news"`
	AI          AIConfig          `toml:"ai"`
	Logging     LoggingConfig     `toml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	WebDir          string `toml:"web_dir"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// StorageConfig locates the SQLite database. Empty DataDir means the platform app dir.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
	DBName  string `toml:"db_name"`
	DBPath  string `toml:"db_path"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"`
}

// DataServiceConfig points at the companion market data service.
type DataServiceConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// NewsConfig selects the news search backend.
type NewsConfig struct {
	Provider  string `toml:"provider"`
	TavilyURL string `toml:"tavily_url"`
	Timeout   string `toml:"timeout"`
}

// AIConfig holds per-operation model call deadlines.
type AIConfig struct {
	AnalysisTimeout string `toml:"analysis_timeout"`
	ChatTimeout     string `toml:"chat_timeout"`
	ProbeTimeout    string `toml:"probe_timeout"`
}

// LoggingConfig configures internal/logging. Empty Dir means {data dir}/logs.
type LoggingConfig struct {
	Level         string `toml:"level"`
	Format        string `toml:"format"`
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
}

// NewDefaultConfig returns a Config with defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "prod",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ShutdownTimeout: "10s",
		},
		Storage: StorageConfig{
			DBName: defaultDBName,
		},
		Auth: AuthConfig{
			TokenExpiry: "24h",
		},
		DataService: DataServiceConfig{
			BaseURL:   "http://127.0.0.1:8001/api",
			RateLimit: 5,
			Timeout:   "30s",
		},
		News: NewsConfig{
			Provider:  "service",
			TavilyURL: "https://api.tavily.com",
			Timeout:   "60s",
		},
		AI: AIConfig{
			AnalysisTimeout: "90s",
			ChatTimeout:     "60s",
			ProbeTimeout:    "15s",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "text",
			RetentionDays: 7,
		},
	}
}

// LoadConfig merges the given TOML files over the defaults, later files winning.
// Missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	cfg.Environment = normalizeEnvironment(cfg.Environment)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("ENV", &cfg.Environment)
	str("HOST", &cfg.Server.Host)
	num("PORT", &cfg.Server.Port)
	str("WEB_DIR", &cfg.Server.WebDir)
	str("DATA_DIR", &cfg.Storage.DataDir)
	str("DB_PATH", &cfg.Storage.DBPath)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("TOKEN_EXPIRY", &cfg.Auth.TokenExpiry)
	str("DATA_SERVICE_URL", &cfg.DataService.BaseURL)
	str("NEWS_PROVIDER", &cfg.News.Provider)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
}

func normalizeEnvironment(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev":
		return "dev"
	case "production", "prod", "":
		return "prod"
	default:
		return strings.ToLower(strings.TrimSpace(env))
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch strings.ToLower(c.News.Provider) {
	case "service", "tavily":
	default:
		return fmt.Errorf("invalid news provider: %q", c.News.Provider)
	}
	durations := map[string]string{
		"auth.token_expiry":       c.Auth.TokenExpiry,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"data_service.timeout":    c.DataService.Timeout,
		"news.timeout":            c.News.Timeout,
		"ai.analysis_timeout":     c.AI.AnalysisTimeout,
		"ai.chat_timeout":         c.AI.ChatTimeout,
		"ai.probe_timeout":        c.AI.ProbeTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
	}
	return nil
}

// IsProduction reports whether the environment is prod.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Duration parses a configured duration, returning fallback when empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

var runtimeDataDir string

// SetRuntimeDataDir overrides every other data dir source; used by the -data-dir flag.
func SetRuntimeDataDir(dir string) {
	runtimeDataDir = dir
}

// DataDir resolves and creates the data directory: runtime override, then
// storage.data_dir (or FUNDBOARD_DATA_DIR), then the platform app dir.
func (c *Config) DataDir() (string, error) {
	dir := runtimeDataDir
	if dir == "" {
		dir = c.Storage.DataDir
	}
	if dir == "" {
		appDir, err := appConfigDir()
		if err != nil {
			return "", err
		}
		dir = appDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// DBPath returns storage.db_path when set, else {data dir}/{db_name}.
func (c *Config) DBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	name := c.Storage.DBName
	if name == "" {
		name = defaultDBName
	}
	return filepath.Join(dir, name), nil
}

// LogDir returns logging.dir when set, else {data dir}/logs.
func (c *Config) LogDir() (string, error) {
	if c.Logging.Dir != "" {
		return c.Logging.Dir, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

func appConfigDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, appName), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", strings.ToLower(appName)), nil
	}
	return filepath.Join(configDir, strings.ToLower(appName)), nil
}
