package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"retail-dashboard/internal/models"
	"retail-dashboard/internal/pipeline"
)

type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Logger   LoggerConfig
	Security SecurityConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DataConfig struct {
	CSVFiles     []string
	LoadTimeout  time.Duration
	CacheEnabled bool
	CacheDir     string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

type PipelineConfig struct {
	DateFormat    string
	Delimiter     string
	TopN          int
	RankMetric    string
	Granularity   string
	MaxRejections int
	Workers       int
	MappingFile   string
	Columns       ColumnsConfig
}

// ColumnsConfig is the column mapping, settable from env or a YAML file:
//
//	date_column: order_date
//	category_column: category
//	customer_column: customer_id
//	quantity_column: quantity
//	price_column: unit_price
//	order_column: order_id
type ColumnsConfig struct {
	Date     string `yaml:"date_column"`
	Category string `yaml:"category_column"`
	Customer string `yaml:"customer_column"`
	Quantity string `yaml:"quantity_column"`
	Price    string `yaml:"price_column"`
	Order    string `yaml:"order_column"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Data: DataConfig{
			CSVFiles:     getEnvStringSlice("CSV_FILES", []string{"data/sample_orders.csv"}),
			LoadTimeout:  getEnvDuration("CSV_LOAD_TIMEOUT", 30*time.Second),
			CacheEnabled: getEnvBool("CACHE_ENABLED", true),
			CacheDir:     getEnvString("CACHE_DIR", ".cache"),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", 10),
			AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Pipeline: loadPipeline(),
	}

	if cfg.Pipeline.MappingFile != "" {
		cols, err := LoadColumns(cfg.Pipeline.MappingFile, cfg.Pipeline.Columns)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline.Columns = cols
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultPipelineConfig mirrors pipeline.DefaultOptions.
func DefaultPipelineConfig() PipelineConfig {
	def := pipeline.DefaultColumnMapping()
	return PipelineConfig{
		DateFormat:    pipeline.DefaultDateFormat,
		Delimiter:     ",",
		TopN:          pipeline.DefaultTopN,
		RankMetric:    string(models.MetricRevenue),
		Granularity:   string(models.GranularityMonth),
		MaxRejections: pipeline.DefaultMaxRejections,
		Workers:       1,
		Columns: ColumnsConfig{
			Date:     def.DateColumn,
			Category: def.CategoryColumn,
			Customer: def.CustomerColumn,
			Quantity: def.QuantityColumn,
			Price:    def.PriceColumn,
			Order:    def.OrderColumn,
		},
	}
}

func loadPipeline() PipelineConfig {
	def := DefaultPipelineConfig()
	return PipelineConfig{
		DateFormat:    getEnvString("PIPELINE_DATE_FORMAT", def.DateFormat),
		Delimiter:     getEnvString("PIPELINE_DELIMITER", def.Delimiter),
		TopN:          getEnvInt("PIPELINE_TOP_N", def.TopN),
		RankMetric:    getEnvString("PIPELINE_RANK_METRIC", def.RankMetric),
		Granularity:   getEnvString("PIPELINE_GRANULARITY", def.Granularity),
		MaxRejections: getEnvInt("PIPELINE_MAX_REJECTIONS", def.MaxRejections),
		Workers:       getEnvInt("PIPELINE_WORKERS", def.Workers),
		MappingFile:   getEnvString("COLUMN_MAPPING_FILE", ""),
		Columns: ColumnsConfig{
			Date:     getEnvString("COLUMN_DATE", def.Columns.Date),
			Category: getEnvString("COLUMN_CATEGORY", def.Columns.Category),
			Customer: getEnvString("COLUMN_CUSTOMER", def.Columns.Customer),
			Quantity: getEnvString("COLUMN_QUANTITY", def.Columns.Quantity),
			Price:    getEnvString("COLUMN_PRICE", def.Columns.Price),
			Order:    getEnvString("COLUMN_ORDER", def.Columns.Order),
		},
	}
}

// LoadColumns reads a YAML column mapping. Keys absent from the file keep
// the values in base.
func LoadColumns(path string, base ColumnsConfig) (ColumnsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read column mapping: %w", err)
	}
	cols := base
	if err := yaml.Unmarshal(data, &cols); err != nil {
		return base, fmt.Errorf("parse column mapping %s: %w", path, err)
	}
	return cols, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if len(c.Data.CSVFiles) == 0 {
		return fmt.Errorf("at least one CSV file is required")
	}

	names := make(map[string]string, len(c.Data.CSVFiles))
	for _, file := range c.Data.CSVFiles {
		name := filepath.Base(file)
		if prev, ok := names[name]; ok {
			return fmt.Errorf("CSV files %s and %s share the source name %q", prev, file, name)
		}
		names[name] = file
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return c.Pipeline.Validate()
}

func (p PipelineConfig) Validate() error {
	if p.TopN <= 0 {
		return fmt.Errorf("pipeline top N must be positive, got %d", p.TopN)
	}

	if !models.Metric(p.RankMetric).Valid() {
		return fmt.Errorf("invalid rank metric %q, must be one of: revenue, quantity, count", p.RankMetric)
	}

	if _, err := models.ParseGranularity(p.Granularity); err != nil {
		return err
	}

	if len([]rune(p.Delimiter)) != 1 {
		return fmt.Errorf("pipeline delimiter must be a single character, got %q", p.Delimiter)
	}

	if p.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive")
	}

	if p.MaxRejections < 0 {
		return fmt.Errorf("pipeline max rejections cannot be negative")
	}

	c := p.Columns
	for name, value := range map[string]string{
		"date": c.Date, "category": c.Category, "customer": c.Customer,
		"quantity": c.Quantity, "price": c.Price,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s column name cannot be empty", name)
		}
	}

	return nil
}

// Options converts the pipeline settings into run options.
func (p PipelineConfig) Options() pipeline.Options {
	granularity, _ := models.ParseGranularity(p.Granularity)
	return pipeline.Options{
		Mapping: pipeline.ColumnMapping{
			DateColumn:     p.Columns.Date,
			CategoryColumn: p.Columns.Category,
			CustomerColumn: p.Columns.Customer,
			QuantityColumn: p.Columns.Quantity,
			PriceColumn:    p.Columns.Price,
			OrderColumn:    p.Columns.Order,
		},
		Delimiter:     []rune(p.Delimiter)[0],
		DateFormat:    p.DateFormat,
		MaxRejections: p.MaxRejections,
		TopN:          p.TopN,
		RankMetric:    models.Metric(p.RankMetric),
		Granularity:   granularity,
		Workers:       p.Workers,
	}
}

func getEnvString(key, defaultValue string) string {
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
