package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds the two store targets a backfill can write to
type DatabaseConfig struct {
	Remote StoreConfig `yaml:"remote"`
	Local  StoreConfig `yaml:"local"`
}

// StoreConfig holds connection settings for one store.
// Driver is "postgres" or "sqlite"; URL, when set, wins over the discrete fields.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
}

// Configured reports whether enough is set to open the store
func (s *StoreConfig) Configured() bool {
	if s.Driver == DriverSQLite {
		return s.Path != ""
	}
	return s.URL != "" || s.Host != ""
}

// ConnectionString returns the PostgreSQL connection string
func (s *StoreConfig) ConnectionString() string {
	if s.URL != "" {
		return s.URL
	}
	return "postgres://" + s.User + ":" + s.Password + "@" + s.Host + ":" + s.Port + "/" + s.DBName + "?sslmode=" + s.SSLMode
}

// FetchConfig holds upstream fetch tuning
type FetchConfig struct {
	Retries     int           `yaml:"retries"`
	RetryPause  time.Duration `yaml:"retry_pause"`
	DayDelay    time.Duration `yaml:"day_delay"`
	TWSEURL     string        `yaml:"twse_url"`
	TWSEWarmup  string        `yaml:"twse_warmup_url"`
	TWSETimeout time.Duration `yaml:"twse_timeout"`
	TPExURL     string        `yaml:"tpex_url"`
	TPExTimeout time.Duration `yaml:"tpex_timeout"`
}

// RedisConfig holds the optional fetch cache settings
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	EventsTopic   string   `yaml:"events_topic"`
	RequestsTopic string   `yaml:"requests_topic"`
	GroupID       string   `yaml:"group_id"`
}

// ScheduleConfig holds the optional recurring backfill
type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	Timezone   string `yaml:"timezone"`
	UseLocalDB bool   `yaml:"use_local_db"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Supported store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "5004",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Remote: StoreConfig{
				Driver:  DriverPostgres,
				SSLMode: "require",
			},
			Local: StoreConfig{
				Driver:   DriverPostgres,
				Host:     "localhost",
				Port:     "5432",
				User:     "postgres",
				Password: "postgres",
				DBName:   "postgres",
				SSLMode:  "prefer",
			},
		},
		Fetch: FetchConfig{
			Retries:     3,
			RetryPause:  800 * time.Millisecond,
			DayDelay:    200 * time.Millisecond,
			TWSEURL:     "https://www.twse.com.tw/exchangeReport/BWIBBU_d",
			TWSEWarmup:  "https://www.twse.com.tw/zh/trading/historical/bwibbu-day.html",
			TWSETimeout: 15 * time.Second,
			TPExURL:     "https://www.tpex.org.tw/web/stock/aftertrading/peratio_analysis/pera_result.php",
			TPExTimeout: 20 * time.Second,
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			EventsTopic:   "bwibbu-events",
			RequestsTopic: "bwibbu-requests",
			GroupID:       "bwibbu-backfill",
		},
		Schedule: ScheduleConfig{
			Timezone: "Asia/Taipei",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence (env wins).
// ${VAR} references inside the file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)

	remote := &cfg.Database.Remote
	remote.URL = getEnv("DATABASE_URL", getEnv("NEON_DATABASE_URL", remote.URL))
	remote.Driver = getEnv("REMOTE_DB_DRIVER", remote.Driver)
	remote.SSLMode = getEnv("REMOTE_DB_SSLMODE", remote.SSLMode)

	local := &cfg.Database.Local
	local.Driver = getEnv("LOCAL_DB_DRIVER", local.Driver)
	local.Host = getEnv("DB_HOST", local.Host)
	local.Port = getEnv("DB_PORT", local.Port)
	local.User = getEnv("DB_USER", local.User)
	local.Password = getEnv("DB_PASSWORD", local.Password)
	local.DBName = getEnv("DB_NAME", local.DBName)
	local.SSLMode = getEnv("DB_SSLMODE", local.SSLMode)
	local.Path = getEnv("LOCAL_DB_PATH", local.Path)

	cfg.Fetch.Retries = getEnvInt("FETCH_RETRIES", cfg.Fetch.Retries)
	cfg.Fetch.RetryPause = getEnvDuration("FETCH_RETRY_PAUSE", cfg.Fetch.RetryPause)
	cfg.Fetch.DayDelay = getEnvDuration("FETCH_DAY_DELAY", cfg.Fetch.DayDelay)
	cfg.Fetch.TWSEURL = getEnv("TWSE_URL", cfg.Fetch.TWSEURL)
	cfg.Fetch.TPExURL = getEnv("TPEX_URL", cfg.Fetch.TPExURL)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TTL = getEnvDuration("REDIS_TTL", cfg.Redis.TTL)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.EventsTopic = getEnv("KAFKA_EVENTS_TOPIC", cfg.Kafka.EventsTopic)
	cfg.Kafka.RequestsTopic = getEnv("KAFKA_REQUESTS_TOPIC", cfg.Kafka.RequestsTopic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.Schedule.Cron = getEnv("BACKFILL_CRON", cfg.Schedule.Cron)
	cfg.Schedule.Timezone = getEnv("BACKFILL_TIMEZONE", cfg.Schedule.Timezone)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// CronParser accepts six-field specs (with seconds)
var CronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Fetch.Retries < 1 {
		return fmt.Errorf("fetch.retries must be at least 1, got %d", c.Fetch.Retries)
	}
	if c.Fetch.RetryPause < 0 {
		return fmt.Errorf("fetch.retry_pause must not be negative")
	}
	if c.Fetch.DayDelay < 0 {
		return fmt.Errorf("fetch.day_delay must not be negative")
	}
	for name, s := range map[string]StoreConfig{"remote": c.Database.Remote, "local": c.Database.Local} {
		if s.Driver != DriverPostgres && s.Driver != DriverSQLite {
			return fmt.Errorf("database.%s.driver must be %q or %q, got %q", name, DriverPostgres, DriverSQLite, s.Driver)
		}
	}
	if c.Schedule.Cron != "" {
		if _, err := CronParser.Parse(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
