// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config - главная структура конфигурации
type Config struct {
	App       AppConfig       `koanf:"app"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Audit     AuditConfig     `koanf:"audit"`
	Builder   BuilderConfig   `koanf:"builder"`
	Solver    SolverConfig    `koanf:"solver"`
	Report    ReportConfig    `koanf:"report"`
}

// AppConfig - общие настройки приложения
type AppConfig struct {
	Name        string `koanf:"name" validate:"required"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig - настройки HTTP сервера
type HTTPConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"gte=0"`
}

// Address возвращает адрес для net.Listen
func (h HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", h.Port)
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level      string `koanf:"level" validate:"oneof=debug info warn error"`
	Format     string `koanf:"format" validate:"oneof=json text"`
	Output     string `koanf:"output" validate:"oneof=stdout stderr file"`
	FilePath   string `koanf:"file_path" validate:"required_if=Output file"`
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // количество бэкапов
	MaxAge     int    `koanf:"max_age"`     // дней
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig - настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
}

// TracingConfig - настройки OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate" validate:"gte=0,lte=1"`
}

// DatabaseConfig - хранилище истории расчётов
type DatabaseConfig struct {
	Driver          string        `koanf:"driver" validate:"oneof=memory postgres"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN возвращает строку подключения
func (d DatabaseConfig) DSN() string {
	if strings.ToLower(d.Driver) != "postgres" {
		return ""
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
	)
}

// CacheConfig - настройки кэша результатов расчёта
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver" validate:"oneof=memory redis"`
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // для in-memory
}

// Address возвращает адрес кэша
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig - проверка bearer-токенов
type AuthConfig struct {
	Enabled   bool   `koanf:"enabled"`
	JWTSecret string `koanf:"jwt_secret" validate:"required_if=Enabled true"`
	Issuer    string `koanf:"issuer"`
}

// RateLimitConfig - ограничение частоты тяжёлых вызовов (Solve, BuildNetwork)
type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Backend  string        `koanf:"backend" validate:"oneof=memory redis"` // redis берёт адрес из секции cache
	Strategy string        `koanf:"strategy" validate:"oneof=sliding_window token_bucket"`
	Requests int           `koanf:"requests" validate:"gt=0"`
	Window   time.Duration `koanf:"window" validate:"gt=0"`
	Burst    int           `koanf:"burst" validate:"gte=0"`
}

// AuditConfig - журнал действий над сетями и расчётами
type AuditConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Output   string `koanf:"output" validate:"oneof=log file"`
	FilePath string `koanf:"file_path" validate:"required_if=Output file"`
}

// BuilderConfig - параметры построения сети из геоданных.
// Выбор источника не имеет значения по умолчанию: политика и индекс или
// координаты задаются явно для каждого набора данных.
type BuilderConfig struct {
	CRS               string  `koanf:"crs" validate:"oneof=EPSG:4326 EPSG:3857 planar"`
	SnapTolerance     float64 `koanf:"snap_tolerance" validate:"gte=0"`
	MaxSearchDistance float64 `koanf:"max_search_distance" validate:"gt=0"`
	Producer          string  `koanf:"producer" validate:"omitempty,oneof=index nearest"`
	ProducerIndex     int     `koanf:"producer_index" validate:"gte=0"`
	ProducerX         float64 `koanf:"producer_x"`
	ProducerY         float64 `koanf:"producer_y"`
	DefaultDiameter   float64 `koanf:"default_diameter" validate:"gte=0"`
	PruneDangling     bool    `koanf:"prune_dangling"`
	MergeReverseEdges bool    `koanf:"merge_reverse_edges"`
}

// ErrProducerPolicyMissing политика выбора источника не задана
var ErrProducerPolicyMissing = errors.New("builder.producer is required to build a network")

// Validate проверяет, что построитель можно запустить
func (b BuilderConfig) Validate() error {
	if b.Producer == "" {
		return ErrProducerPolicyMissing
	}
	return nil
}

// SolverConfig - параметры гидравлического решателя
type SolverConfig struct {
	Workers           int           `koanf:"workers" validate:"gte=0"`
	ConditionLimit    float64       `koanf:"condition_limit" validate:"gt=0"`
	ResidualTolerance float64       `koanf:"residual_tolerance" validate:"gt=0"`
	Timeout           time.Duration `koanf:"timeout"`
	CacheTTL          time.Duration `koanf:"cache_ttl"`
}

// ReportConfig - параметры отчётов
type ReportConfig struct {
	Title           string `koanf:"title"`
	CompanyName     string `koanf:"company_name"`
	MaxEdgesInTable int    `koanf:"max_edges_in_table" validate:"gte=0"`
	PageSize        string `koanf:"page_size" validate:"omitempty,oneof=A4 A3 Letter Legal"`
	Orientation     string `koanf:"orientation" validate:"omitempty,oneof=portrait landscape"`
}

var validate = validator.New()

// Validate проверяет конфигурацию по тегам validate
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s' (value %v)", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(msgs, "; "))
}

// IsDevelopment проверяет режим разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction проверяет продакшн режим
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
