package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port                   string
	Env                    string
	LogLevel               string
	AllowedOrigin          string
	StoreDriver            string
	DatabaseURL            string
	MongoURI               string
	MongoDatabase          string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	ProductCacheTTLSeconds int
	LockTTLSeconds         int
	AuthSecret             string
	AccessTokenTTLMinutes  int
}

// Load reads the process configuration. A .env file in the working directory
// is applied first when present; real environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    strings.ToLower(getEnv("APP_ENV", "development")),
		LogLevel:               strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MongoURI:               strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase:          getEnv("MONGO_DATABASE", "partsledger"),
		RedisAddr:              strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0, 0),
		ProductCacheTTLSeconds: getInt("PRODUCT_CACHE_TTL_SECONDS", 300, 1),
		LockTTLSeconds:         getInt("LOCK_TTL_SECONDS", 10, 1),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if cfg.StoreDriver == "" {
		switch {
		case cfg.MongoURI != "":
			cfg.StoreDriver = DriverMongo
		case cfg.DatabaseURL != "":
			cfg.StoreDriver = DriverPostgres
		default:
			cfg.StoreDriver = DriverMemory
		}
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// ValidateStore reports a driver that is unknown or missing its connection URL.
func (c Config) ValidateStore() error {
	switch c.StoreDriver {
	case DriverMemory:
		return nil
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
		return nil
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("STORE_DRIVER=mongo requires MONGO_URI")
		}
		return nil
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want memory, postgres or mongo)", c.StoreDriver)
	}
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < min {
		return fallback
	}
	return val
}
