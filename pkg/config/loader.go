package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "HEATNET_"
	configEnvVar = "CONFIG_PATH"
)

// sections верхние ключи конфигурации. Переменная HEATNET_BUILDER_SNAP_TOLERANCE
// раскладывается в builder.snap_tolerance: первое совпавшее имя секции
// отделяется точкой, остальное остаётся именем поля.
var sections = []string{
	"app", "http", "log", "metrics", "tracing", "database",
	"cache", "auth", "ratelimit", "audit", "builder", "solver", "report",
}

// Loader загружает конфигурацию из разных источников
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
	loadedFile  string
}

// NewLoader создаёт новый загрузчик конфигурации
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/heatnet/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption - опция для конфигурации загрузчика
type LoaderOption func(*Loader)

// WithConfigPaths устанавливает пути поиска конфигурации
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix устанавливает префикс переменных окружения
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load загружает конфигурацию с приоритетом:
// 1. Defaults (самый низкий)
// 2. Config file (yaml), необязателен
// 3. Environment variables (самый высокий)
func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		return nil, err
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigFile возвращает путь прочитанного файла или пустую строку
func (l *Loader) ConfigFile() string {
	return l.loadedFile
}

// Defaults значения по умолчанию. Для выбора источника их нет.
func Defaults() map[string]any {
	return map[string]any{
		"app.name":        "heating-svc",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		"http.port":             8080,
		"http.read_timeout":     30 * time.Second,
		"http.write_timeout":    120 * time.Second,
		"http.shutdown_timeout": 10 * time.Second,
		"http.max_body_bytes":   64 * 1024 * 1024,

		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		"metrics.enabled":   true,
		"metrics.path":      "/metrics",
		"metrics.namespace": "heatnet",

		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "heating-svc",
		"tracing.sample_rate":  0.1,

		"database.driver":             "memory",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "heatnet",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.auto_migrate":       true,

		"cache.enabled":     true,
		"cache.driver":      "memory",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.db":          0,
		"cache.default_ttl": 10 * time.Minute,
		"cache.max_entries": 1000,

		"auth.enabled": false,
		"auth.issuer":  "heatnet",

		"ratelimit.enabled":  false,
		"ratelimit.backend":  "memory",
		"ratelimit.strategy": "sliding_window",
		"ratelimit.requests": 60,
		"ratelimit.window":   time.Minute,
		"ratelimit.burst":    10,

		"audit.enabled":   true,
		"audit.output":    "log",
		"audit.file_path": "logs/audit.jsonl",

		"builder.crs":                 "planar",
		"builder.snap_tolerance":      0.5,
		"builder.max_search_distance": 500.0,
		"builder.default_diameter":    0.1,
		"builder.prune_dangling":      true,
		"builder.merge_reverse_edges": false,

		"solver.workers":            0,
		"solver.condition_limit":    1e12,
		"solver.residual_tolerance": 1e-6,
		"solver.timeout":            60 * time.Second,
		"solver.cache_ttl":          30 * time.Minute,

		"report.title":              "District heating flow report",
		"report.company_name":       "",
		"report.max_edges_in_table": 200,
		"report.page_size":          "A4",
		"report.orientation":        "portrait",
	}
}

// loadConfigFile загружает конфигурацию из файла, если он найден.
// Явно указанный CONFIG_PATH обязан существовать.
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file %s: %w", configPath, err)
		}
		l.loadedFile = configPath
		return l.k.Load(file.Provider(configPath), yaml.Parser())
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			l.loadedFile = absPath
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return nil
}

// loadEnv загружает конфигурацию из переменных окружения
func (l *Loader) loadEnv() error {
	return l.k.Load(env.ProviderWithValue(l.envPrefix, ".", func(envKey string, value string) (string, interface{}) {
		return envToKey(strings.TrimPrefix(envKey, l.envPrefix)), value
	}), nil)
}

// envToKey переводит BUILDER_SNAP_TOLERANCE в builder.snap_tolerance
func envToKey(raw string) string {
	key := strings.ToLower(raw)
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return strings.ReplaceAll(key, "_", ".")
}

// MustLoad загружает конфигурацию или паникует
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load - удобная функция для загрузки с дефолтными настройками
func Load() (*Config, error) {
	return NewLoader().Load()
}
