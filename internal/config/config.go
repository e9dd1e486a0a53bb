package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション設定を表す
type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Lock      LockConfig
	Ledger    LedgerConfig
	Messaging MessagingConfig
	Ticket    TicketConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigin   string
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LockConfig は座席ロックの設定
type LockConfig struct {
	HoldTTL            time.Duration
	LockTTL            time.Duration
	ExpiryPollInterval time.Duration
	// ReleaseLockOnHold は仮押さえ取得時に別座席の自分のロックを解放するか
	ReleaseLockOnHold bool
}

// 予約台帳の保存先
const (
	LedgerDriverFile     = "file"
	LedgerDriverPostgres = "postgres"
)

// LedgerConfig は予約台帳とカタログの設定
type LedgerConfig struct {
	Driver         string
	DataDir        string
	MigrationsPath string
}

// MessagingConfig は予約イベント通知の設定（URLが空なら無効）
type MessagingConfig struct {
	RabbitMQURL string
	Queue       string
}

// TicketConfig は乗車券の設定
type TicketConfig struct {
	Secret string
}

// Load は環境変数から設定を読み込む
// .env ファイルがあれば先に読み込む
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			CORSOrigin:   getEnv("CORS_ORIGIN", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "bus_reservation"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Lock: LockConfig{
			HoldTTL:            getDurationEnv("HOLD_TTL", 30*time.Second),
			LockTTL:            getDurationEnv("LOCK_TTL", 10*time.Minute),
			ExpiryPollInterval: getDurationEnv("EXPIRY_POLL_INTERVAL", 3*time.Second),
			ReleaseLockOnHold:  getBoolEnv("LOCK_RELEASE_ON_HOLD", true),
		},
		Ledger: LedgerConfig{
			Driver:         getEnv("LEDGER_DRIVER", LedgerDriverFile),
			DataDir:        getEnv("DATA_DIR", "data"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Messaging: MessagingConfig{
			RabbitMQURL: getEnv("RABBITMQ_URL", ""),
			Queue:       getEnv("RABBITMQ_QUEUE", "booking_events"),
		},
		Ticket: TicketConfig{
			Secret: getEnv("TICKET_SECRET", "bus-booking-secret"),
		},
	}

	// DATABASE_URL / REDIS_URL が指定されていれば個別設定より優先する
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		if db, ok := parseDatabaseURL(raw); ok {
			cfg.Database = db
		}
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		if r, ok := parseRedisURL(raw, cfg.Redis); ok {
			cfg.Redis = r
		}
	}
	return cfg
}

// Validate は設定値の整合性を検証する
func (c *Config) Validate() error {
	var errs []error
	if c.Lock.HoldTTL <= 0 {
		errs = append(errs, errors.New("HOLD_TTL は正の値である必要があります"))
	}
	if c.Lock.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL は正の値である必要があります"))
	}
	if c.Lock.ExpiryPollInterval <= 0 {
		errs = append(errs, errors.New("EXPIRY_POLL_INTERVAL は正の値である必要があります"))
	} else if c.Lock.ExpiryPollInterval >= c.Lock.HoldTTL || c.Lock.ExpiryPollInterval >= c.Lock.LockTTL {
		errs = append(errs, fmt.Errorf("EXPIRY_POLL_INTERVAL (%s) はTTLより短くする必要があります", c.Lock.ExpiryPollInterval))
	}
	switch c.Ledger.Driver {
	case LedgerDriverFile, LedgerDriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("不明な LEDGER_DRIVER: %q", c.Ledger.Driver))
	}
	return errors.Join(errs...)
}

// IsProduction は本番環境かを返す
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func parseDatabaseURL(raw string) (DatabaseConfig, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return DatabaseConfig{}, false
	}
	password, _ := u.User.Password()
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "require"
	}
	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, true
}

func parseRedisURL(raw string, base RedisConfig) (RedisConfig, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return RedisConfig{}, false
	}
	r := base
	r.Host = u.Hostname()
	if port := u.Port(); port != "" {
		r.Port = port
	}
	if password, ok := u.User.Password(); ok {
		r.Password = password
	}
	if db, err := strconv.Atoi(strings.TrimPrefix(u.Path, "/")); err == nil {
		r.DB = db
	}
	return r, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
