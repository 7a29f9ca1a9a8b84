package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	defaultConfigPath = "./config/config.yaml"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	Storage    string `yaml:"storage" env:"STORAGE" env-default:"postgres"`
	Tokens     `yaml:"tokens"`
	Cookie     `yaml:"cookie"`
	Sweeper    `yaml:"sweeper"`
	RabbitMQ   `yaml:"rabbitmq"`
	Redis      `yaml:"redis"`
	Postgres   `yaml:"postgres"`
	HTTPServer `yaml:"http_server"`
}

// MailSender is the configuration of cmd/mail_sender.
type MailSender struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local"`
	RabbitMQ `yaml:"rabbitmq"`
	Mailer   `yaml:"mailer"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	PublicURL   string        `yaml:"public_url" env:"HTTP_PUBLIC_URL" env-default:"http://localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"postgres"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

// DSN формирует строку подключения к базе данных.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host,
		p.Port,
		p.User,
		p.Password,
		p.DBName,
		p.SSLMode,
	)
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Tokens struct {
	Secret               string        `yaml:"secret" env:"TOKEN_SECRET" env-required:"true"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	VerificationTokenTTL time.Duration `yaml:"verification_token_ttl" env:"VERIFICATION_TOKEN_TTL" env-default:"24h"`
	ResetTokenTTL        time.Duration `yaml:"reset_token_ttl" env:"RESET_TOKEN_TTL" env-default:"30m"`
}

type Cookie struct {
	Secure bool `yaml:"secure" env:"COOKIE_SECURE" env-default:"false"`
}

type Sweeper struct {
	Interval time.Duration `yaml:"interval" env:"SWEEPER_INTERVAL" env-default:"1h"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL"`
	QueueName string `yaml:"queue_name" env:"RABBITMQ_QUEUE" env-default:"account_links"`
}

type Mailer struct {
	Host     string `yaml:"host" env:"SMTP_HOST" env-required:"true"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME" env-required:"true"`
	Password string `yaml:"password" env:"SMTP_PASSWORD" env-required:"true"`
}

// MustLoad читает конфиг сервиса, паникует при ошибке.
func MustLoad() *Config {
	var cfg Config

	if err := load(configPath(), &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	if err := cfg.validate(); err != nil {
		panic("Invalid config: " + err.Error())
	}

	return &cfg
}

// MustLoadMailSender читает конфиг почтового воркера.
func MustLoadMailSender() *MailSender {
	var cfg MailSender

	if err := load(configPath(), &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	if cfg.RabbitMQ.URL == "" {
		panic("Invalid config: rabbitmq.url is required")
	}

	return &cfg
}

// * load читает yaml файл (если он есть) и переменные окружения
func load(path string, cfg any) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cleanenv.ReadEnv(cfg)
	}

	return cleanenv.ReadConfig(path, cfg)
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	return defaultConfigPath
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.Postgres.User == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("postgres.user and postgres.dbname are required for storage %q", c.Storage)
		}
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}

	if c.Tokens.Secret == "" {
		return fmt.Errorf("tokens.secret is required")
	}

	if c.Tokens.AccessTokenTTL <= 0 || c.Tokens.RefreshTokenTTL <= 0 ||
		c.Tokens.VerificationTokenTTL <= 0 || c.Tokens.ResetTokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}

	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}

	return nil
}
