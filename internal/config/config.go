package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"listings/internal/models"
)

// ErrNoAdminPassword: без пароля админа сервер не стартует
var ErrNoAdminPassword = errors.New("ADMIN_PASSWORD_HASH or ADMIN_PASSWORD must be set")

type Config struct {
	Port string

	DBDriver string
	DBDSN    string

	AdminPasswordHash string
	SessionSecret     []byte
	SessionTTL        time.Duration
	CookieSecure      bool

	UploadMaxFileSize int64
	UploadMaxFiles    int

	CORSOrigins []string

	FeedURL       string
	FeedTTL       time.Duration
	RedisAddr     string
	RedisPassword string

	SentryDSN string
	SentryEnv string
}

// LoadEnv грузит .env из нескольких мест: текущая папка, родительская, корень репо
func LoadEnv() {
	_ = godotenv.Overload(".env", "../.env", "../../.env")
}

// FromEnv собирает конфиг из переменных окружения
func FromEnv() (*Config, error) {
	return Parse(os.Getenv)
}

// Parse собирает конфиг через getenv, удобно подменять в тестах
func Parse(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:          withDefault(getenv("APP_PORT"), "8080"),
		CookieSecure:  getenv("COOKIE_SECURE") == "true" || getenv("COOKIE_SECURE") == "1",
		FeedURL:       strings.TrimSpace(getenv("FEED_URL")),
		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR")),
		RedisPassword: getenv("REDIS_PASSWORD"),
		SentryDSN:     getenv("SENTRY_DSN"),
		SentryEnv:     withDefault(getenv("SENTRY_ENV"), "production"),
	}

	var err error
	if cfg.DBDriver, cfg.DBDSN, err = Database(getenv); err != nil {
		return nil, err
	}

	hash, err := adminHash(getenv("ADMIN_PASSWORD_HASH"), getenv("ADMIN_PASSWORD"))
	if err != nil {
		return nil, err
	}
	cfg.AdminPasswordHash = hash

	if secret := getenv("SESSION_SECRET"); secret != "" {
		cfg.SessionSecret = []byte(secret)
	} else {
		cfg.SessionSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.SessionSecret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		log.Println("WARN: SESSION_SECRET is empty; using a random key, sessions reset on restart")
	}

	if cfg.SessionTTL, err = durationEnv(getenv, "SESSION_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.FeedTTL, err = durationEnv(getenv, "FEED_TTL", time.Hour); err != nil {
		return nil, err
	}

	maxMB, err := intEnv(getenv, "UPLOAD_MAX_FILE_MB", 10)
	if err != nil {
		return nil, err
	}
	cfg.UploadMaxFileSize = int64(maxMB) << 20
	if cfg.UploadMaxFiles, err = intEnv(getenv, "UPLOAD_MAX_FILES", 12); err != nil {
		return nil, err
	}

	for _, o := range strings.Split(getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	return cfg, nil
}

// DatabaseFromEnv отдаёт драйвер и DSN без остального конфига (для migrate)
func DatabaseFromEnv() (driver, dsn string, err error) {
	return Database(os.Getenv)
}

// Database читает DB_DRIVER/DB_DSN; драйвер без учёта регистра, по умолчанию sqlite
func Database(getenv func(string) string) (driver, dsn string, err error) {
	driver = withDefault(strings.ToLower(strings.TrimSpace(getenv("DB_DRIVER"))), "sqlite")
	dsn = getenv("DB_DSN")
	if driver == "postgres" && dsn == "" {
		return "", "", errors.New("DB_DSN is empty (check your .env)")
	}
	return driver, dsn, nil
}

func adminHash(hash, plain string) (string, error) {
	hash = strings.TrimSpace(hash)
	if hash != "" {
		if !models.IsPasswordHash(hash) {
			return "", errors.New("ADMIN_PASSWORD_HASH is not a bcrypt hash (use the hash-password command)")
		}
		return hash, nil
	}
	if plain == "" {
		return "", ErrNoAdminPassword
	}
	return models.HashPassword(plain)
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationEnv(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func intEnv(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return n, nil
}
