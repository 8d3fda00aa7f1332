package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	CursorTimestamp = "timestamp"
	CursorIndex     = "index"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Chart     ChartConfig     `mapstructure:"chart"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Development bool     `mapstructure:"development"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	GroupID    string   `mapstructure:"group_id"`
	Partitions int      `mapstructure:"partitions"`
}

type ProcessorConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

// QuotesConfig describes the generated feed. Generator, processor and gateway must agree on it.
type QuotesConfig struct {
	Feed            string   `mapstructure:"feed"`
	Tickers         []string `mapstructure:"tickers"`
	TickerCount     int      `mapstructure:"ticker_count"` // used when Tickers is empty
	TickIntervalSec float64  `mapstructure:"tick_interval_sec"`
	MaxStoredTicks  int64    `mapstructure:"max_stored_ticks"`
	InitialQuote    int      `mapstructure:"initial_quote"`
	MinQuote        int      `mapstructure:"min_quote"`
	MaxQuote        int      `mapstructure:"max_quote"`
}

// ChartConfig configures the chart client.
type ChartConfig struct {
	ServerURL     string        `mapstructure:"server_url"`
	WindowWidth   int           `mapstructure:"window_width"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	History       time.Duration `mapstructure:"history"`
	Cursor        string        `mapstructure:"cursor"` // "timestamp" or "index"
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// TickerNames returns the configured tickers, or ticker_00..ticker_NN when none are listed.
func (q QuotesConfig) TickerNames() []string {
	if len(q.Tickers) > 0 {
		return q.Tickers
	}
	names := make([]string, q.TickerCount)
	for i := range names {
		names[i] = fmt.Sprintf("ticker_%02d", i)
	}
	return names
}

// TickInterval returns the tick interval as a duration.
func (q QuotesConfig) TickInterval() time.Duration {
	return time.Duration(q.TickIntervalSec * float64(time.Second))
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults
	setDefaults(v)

	// 3. Configure Viper to read Environment Variables ("quotes.feed" -> "QUOTES_FEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys so Unmarshal sees them
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.development", "logger.output_paths")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id", "kafka.partitions")
	bindEnv(v, "processor.num_workers")
	bindEnv(v, "quotes.feed", "quotes.tickers", "quotes.ticker_count", "quotes.tick_interval_sec",
		"quotes.max_stored_ticks", "quotes.initial_quote", "quotes.min_quote", "quotes.max_quote")
	bindEnv(v, "chart.server_url", "chart.window_width", "chart.poll_interval", "chart.history",
		"chart.cursor", "chart.reconnect_wait")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// 6. Validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.output_paths", []string{"stderr"})

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "quote_ticks")
	v.SetDefault("kafka.group_id", "quote-processor-group")
	v.SetDefault("kafka.partitions", 4)

	v.SetDefault("processor.num_workers", 4)

	v.SetDefault("quotes.feed", "quotes")
	v.SetDefault("quotes.tickers", []string{})
	v.SetDefault("quotes.ticker_count", 100)
	v.SetDefault("quotes.tick_interval_sec", 1.0)
	v.SetDefault("quotes.max_stored_ticks", 7*86400) // seven days at one tick per second
	v.SetDefault("quotes.initial_quote", 0)
	v.SetDefault("quotes.min_quote", 0)
	v.SetDefault("quotes.max_quote", 65535)

	v.SetDefault("chart.server_url", "http://localhost:8080")
	v.SetDefault("chart.window_width", 50)
	v.SetDefault("chart.poll_interval", 500*time.Millisecond)
	v.SetDefault("chart.history", 24*time.Hour)
	v.SetDefault("chart.cursor", CursorTimestamp)
	v.SetDefault("chart.reconnect_wait", 2*time.Second)
}

// Validate checks the values every binary relies on.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Processor.NumWorkers <= 0 {
		return fmt.Errorf("processor.num_workers must be positive, got %d", c.Processor.NumWorkers)
	}
	if len(c.Quotes.TickerNames()) == 0 {
		return fmt.Errorf("quotes: no tickers configured")
	}
	if c.Quotes.TickIntervalSec <= 0 {
		return fmt.Errorf("quotes.tick_interval_sec must be positive, got %v", c.Quotes.TickIntervalSec)
	}
	if c.Quotes.MaxStoredTicks <= 0 {
		return fmt.Errorf("quotes.max_stored_ticks must be positive, got %d", c.Quotes.MaxStoredTicks)
	}
	if c.Quotes.MinQuote > c.Quotes.MaxQuote {
		return fmt.Errorf("quotes: min_quote %d above max_quote %d", c.Quotes.MinQuote, c.Quotes.MaxQuote)
	}
	if c.Chart.WindowWidth <= 0 {
		return fmt.Errorf("chart.window_width must be positive, got %d", c.Chart.WindowWidth)
	}
	if c.Chart.PollInterval <= 0 {
		return fmt.Errorf("chart.poll_interval must be positive, got %s", c.Chart.PollInterval)
	}
	switch c.Chart.Cursor {
	case CursorTimestamp, CursorIndex:
	default:
		return fmt.Errorf("chart.cursor must be %q or %q, got %q", CursorTimestamp, CursorIndex, c.Chart.Cursor)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
