package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgconn"
)

type Config struct {
	Db        DbConfig        `yaml:"db"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Sink      SinkConfig      `yaml:"sink"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logger    LoggerConfig    `yaml:"logger"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

type DbConfig struct {
	// URL wins over the discrete fields when set.
	URL           string `yaml:"url" env:"DATABASE_URL"`
	Driver        string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	Host          string `yaml:"host" env:"DB_HOST"`
	Port          int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User          string `yaml:"user" env:"DB_USER"`
	Password      string `yaml:"password" env:"DB_PASSWORD"`
	Name          string `yaml:"name" env:"DB_NAME"`
	SslMode       string `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`
	NotifyChannel string `yaml:"notify_channel" env:"NOTIFY_CHANNEL" env-default:"test_notifications"`
}

type BridgeConfig struct {
	// 0 keeps the queue unbounded.
	QueueCapacity  int    `yaml:"queue_capacity" env:"BRIDGE_QUEUE_CAPACITY" env-default:"0"`
	OverflowPolicy string `yaml:"overflow_policy" env:"BRIDGE_OVERFLOW_POLICY" env-default:"block"`
}

type SinkConfig struct {
	Kind       string `yaml:"kind" env:"SINK_KIND" env-default:"log"`
	LogIgnored bool   `yaml:"log_ignored" env:"SINK_LOG_IGNORED"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
}

type LoggerConfig struct {
	// Empty address logs to stdout.
	GRPCAddress  string `yaml:"grpc_address" env:"LOGGER_GRPC_ADDRESS"`
	FallbackPath string `yaml:"fallback_path" env:"LOGGER_FALLBACK_PATH" env-default:"pgbridge.log"`
	ServiceName  string `yaml:"service_name" env:"LOGGER_SERVICE_NAME" env-default:"pgbridge"`
	Debug        bool   `yaml:"debug" env:"LOG_DEBUG"`
}

type ReconnectConfig struct {
	Enabled        bool          `yaml:"enabled" env:"RECONNECT_ENABLED" env-default:"true"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"RECONNECT_INITIAL_BACKOFF" env-default:"1s"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"RECONNECT_MAX_BACKOFF" env-default:"10s"`
}

func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic("cannot read config: " + err.Error())
	}
	return cfg
}

// Load reads configPath when it is not empty, otherwise only the
// environment. Environment variables override file values.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Db.DSN(); err != nil {
		return err
	}
	if c.Bridge.QueueCapacity < 0 {
		return fmt.Errorf("bridge.queue_capacity is negative: %d", c.Bridge.QueueCapacity)
	}
	switch c.Sink.Kind {
	case "log":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New("kafka sink needs kafka.brokers and kafka.topic")
		}
	default:
		return fmt.Errorf("unsupported sink: %s", c.Sink.Kind)
	}
	if c.Reconnect.InitialBackoff <= 0 || c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		return fmt.Errorf("reconnect backoff is invalid: %s..%s", c.Reconnect.InitialBackoff, c.Reconnect.MaxBackoff)
	}
	return nil
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}

func (c DbConfig) RedactedDSN() string {
	dsn, err := c.DSN()
	if err != nil {
		return "<invalid dsn: " + err.Error() + ">"
	}
	// URL and keyword/value forms are both accepted, so rebuild from the
	// parsed fields instead of editing the string.
	pc, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "<redacted>"
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(pc.User, "REDACTED"),
		Host:   net.JoinHostPort(pc.Host, strconv.Itoa(int(pc.Port))),
		Path:   "/" + pc.Database,
	}
	return u.String()
}

func (c DbConfig) DSN() (string, error) {
	switch c.Driver {
	case "postgres":
		if c.URL != "" {
			return c.URL, nil
		}
		return c.postgresDSN()
	default:
		return "", fmt.Errorf("unsupported driver: %s", c.Driver)
	}
}

func (c DbConfig) postgresDSN() (string, error) {
	if err := c.validateBase(); err != nil {
		return "", err
	}
	hostPort := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   hostPort,
		Path:   "/" + c.Name,
	}
	q := u.Query()
	if c.SslMode != "" {
		q.Set("sslmode", c.SslMode)
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c DbConfig) validateBase() error {
	if c.Host == "" {
		return errors.New("db.host is empty (or set DATABASE_URL)")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("db.port is invalid: %d", c.Port)
	}
	if c.User == "" {
		return errors.New("db.user is empty")
	}
	if c.Name == "" {
		return errors.New("db.name is empty")
	}
	return nil
}
