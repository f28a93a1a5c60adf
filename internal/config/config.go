package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ServerPort string `mapstructure:"server_port"`

	DBDriver          string        `mapstructure:"db_driver"`
	DBHost            string        `mapstructure:"db_host"`
	DBPort            string        `mapstructure:"db_port"`
	DBUser            string        `mapstructure:"db_user"`
	DBPassword        string        `mapstructure:"db_password"`
	DBName            string        `mapstructure:"db_name"`
	DBSSLMode         string        `mapstructure:"db_sslmode"`
	DBPath            string        `mapstructure:"db_path"`
	DBMaxOpenConns    int           `mapstructure:"db_max_open_conns"`
	DBConnMaxLifetime time.Duration `mapstructure:"db_conn_max_lifetime"`

	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`

	Currencies      []string `mapstructure:"currencies"`
	DefaultCurrency string   `mapstructure:"default_currency"`

	EventsDriver string   `mapstructure:"events_driver"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	NATSURL      string   `mapstructure:"nats_url"`
	NATSSubject  string   `mapstructure:"nats_subject"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from defaults, an optional config file, a .env file
// and FINPAY_ prefixed environment variables, in increasing precedence.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/finpay/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("FINPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Currencies = normalizeList(cfg.Currencies)
	cfg.KafkaBrokers = normalizeList(cfg.KafkaBrokers)
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	for i := range cfg.Currencies {
		cfg.Currencies[i] = strings.ToUpper(cfg.Currencies[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in settings without consulting files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")

	v.SetDefault("db_driver", DriverPostgres)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "password")
	v.SetDefault("db_name", "finpay")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_path", "finpay.db")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_conn_max_lifetime", 5*time.Minute)

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "finpay")

	v.SetDefault("currencies", []string{"USD", "KES"})
	v.SetDefault("default_currency", "USD")

	v.SetDefault("events_driver", "none")
	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("kafka_topic", "ledger_events")
	v.SetDefault("nats_url", "nats://localhost:4222")
	v.SetDefault("nats_subject", "ledger.events")

	v.SetDefault("log_level", "info")
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}

	switch c.EventsDriver {
	case "none", "kafka", "nats":
	default:
		return fmt.Errorf("unsupported events_driver %q", c.EventsDriver)
	}

	if len(c.Currencies) == 0 {
		return errors.New("at least one currency must be configured")
	}
	if !c.SupportsCurrency(c.DefaultCurrency) {
		return fmt.Errorf("default_currency %q is not in currencies", c.DefaultCurrency)
	}
	return nil
}

// GetDBConnectionString returns the DSN for the configured driver.
func (c *Config) GetDBConnectionString() string {
	if c.DBDriver == DriverSQLite {
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", c.DBPath)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) SupportsCurrency(code string) bool {
	for _, cur := range c.Currencies {
		if cur == code {
			return true
		}
	}
	return false
}

// normalizeList splits comma separated values that arrive as a single
// element when set through the environment.
func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
