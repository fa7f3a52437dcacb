package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cthulhu/internal/errcapture"
	"cthulhu/internal/store"
)

// Config holds all configuration
type Config struct {
	Env         string
	ListenAddr  string
	LogLevel    string
	CronjobBase string
	ArtemisBase string
	HTTPTimeout time.Duration
	StoreMode   store.Mode
	Store       store.Options
	Errors      errcapture.Options
	Messages    errcapture.StatusMessageMap
	// ArchivePath is the sqlite file for the error archive. Empty disables the archive.
	ArchivePath         string
	ProgressInterval    time.Duration
	TaskRefreshInterval time.Duration
}

type backends struct {
	cronjob string
	artemis string
}

var envBackends = map[string]backends{
	"dev": {
		cronjob: "http://localhost:8000/api/v1",
		artemis: "http://localhost:8001/api",
	},
	"prod": {
		cronjob: "https://prod-cronjob.example.com/api/v1",
		artemis: "https://prod-artemis.example.com/api",
	},
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	env := strings.ToLower(getEnv("CTHULHU_ENV", "dev"))
	defaults, ok := envBackends[env]
	if !ok {
		return nil, fmt.Errorf("CTHULHU_ENV must be one of dev, prod (got %q)", env)
	}

	mode, err := store.ParseMode(getEnv("STORE_MODE", "server"))
	if err != nil {
		return nil, fmt.Errorf("STORE_MODE: %w", err)
	}

	cfg := &Config{
		Env:         env,
		ListenAddr:  getEnv("LISTEN_ADDR", ":8090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CronjobBase: strings.TrimRight(getEnv("CRONJOB_API_BASE", defaults.cronjob), "/"),
		ArtemisBase: strings.TrimRight(getEnv("ARTEMIS_API_BASE", defaults.artemis), "/"),
		HTTPTimeout: getEnvMillis("HTTP_TIMEOUT_MS", 30*time.Second),
		StoreMode:   mode,
		Store: store.Options{
			PageSize:       getEnvInt("TASK_PAGE_SIZE", store.DefaultPageSize),
			RunPageSize:    getEnvInt("RUN_PAGE_SIZE", store.DefaultRunPageSize),
			SearchDebounce: getEnvMillis("SEARCH_DEBOUNCE_MS", store.DefaultSearchDebounce),
			RunFetchLimit:  getEnvInt("RUN_FETCH_LIMIT", 0),
		},
		Errors: errcapture.Options{
			MaxItems:     getEnvInt("ERRORS_MAX_ITEMS", errcapture.DefaultMaxItems),
			DedupeWindow: getEnvMillis("ERRORS_DEDUPE_WINDOW_MS", errcapture.DefaultDedupeWindow),
			AutoDismiss:  getEnvMillis("ERRORS_AUTO_DISMISS_MS", 0),
		},
		Messages:            errcapture.DefaultStatusMessages(),
		ArchivePath:         getEnv("ARCHIVE_DB_PATH", "cthulhu.db"),
		ProgressInterval:    getEnvMillis("PROGRESS_INTERVAL_MS", 2*time.Second),
		TaskRefreshInterval: getEnvMillis("TASK_REFRESH_INTERVAL_MS", 0),
	}

	if path := os.Getenv("ERRORS_STATUS_MAP_FILE"); path != "" {
		overrides, err := LoadStatusMessages(path)
		if err != nil {
			return nil, err
		}
		cfg.Messages = MergeStatusMessages(cfg.Messages, overrides)
	}

	if cfg.CronjobBase == "" {
		return nil, fmt.Errorf("CRONJOB_API_BASE is required")
	}
	return cfg, nil
}

// LoadStatusMessages reads a YAML status message file:
//
//	status:
//	  404: 资源未找到
//	default: 请求失败，请稍后重试
//	network: 网络异常，请检查网络连接
func LoadStatusMessages(path string) (errcapture.StatusMessageMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return errcapture.StatusMessageMap{}, fmt.Errorf("failed to read status map file: %w", err)
	}
	var m errcapture.StatusMessageMap
	if err := yaml.Unmarshal(b, &m); err != nil {
		return errcapture.StatusMessageMap{}, fmt.Errorf("failed to parse status map file %s: %w", path, err)
	}
	return m, nil
}

// MergeStatusMessages lays the non-empty entries of override over base.
func MergeStatusMessages(base, override errcapture.StatusMessageMap) errcapture.StatusMessageMap {
	out := errcapture.StatusMessageMap{
		Status:  make(map[int]string, len(base.Status)+len(override.Status)),
		Default: base.Default,
		Network: base.Network,
	}
	for k, v := range base.Status {
		out.Status[k] = v
	}
	for k, v := range override.Status {
		if v != "" {
			out.Status[k] = v
		}
	}
	if override.Default != "" {
		out.Default = override.Default
	}
	if override.Network != "" {
		out.Network = override.Network
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
