package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GatewayBaseURL    string
	GatewayTimeout    time.Duration
	GatewayRatePerSec float64
	GatewayBurst      int
	PageSize          int
	SearchDebounce    time.Duration
	PageCacheTTL      time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	JitterThreshold   float64
	RevealThreshold   float64
	RevealOffset      float64
	LogLevel          string
	Port              string
	AuthSecret        string
	AccessTokenTTL    time.Duration
	DevUsername       string
	DevPassword       string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		GatewayBaseURL:    strings.TrimRight(getEnv("GATEWAY_BASE_URL", "http://127.0.0.1:8080"), "/"),
		GatewayTimeout:    time.Duration(getInt("GATEWAY_TIMEOUT_SECONDS", 30, 1)) * time.Second,
		GatewayRatePerSec: getFloat("GATEWAY_RATE_PER_SECOND", 10, 0),
		GatewayBurst:      getInt("GATEWAY_BURST", 5, 1),
		PageSize:          getInt("PICKER_PAGE_SIZE", 20, 1),
		SearchDebounce:    time.Duration(getInt("PICKER_DEBOUNCE_MS", 300, 0)) * time.Millisecond,
		PageCacheTTL:      time.Duration(getInt("PAGE_CACHE_TTL_SECONDS", 20, 1)) * time.Second,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getInt("REDIS_DB", 0, 0),
		JitterThreshold:   getFloat("SWIPE_JITTER_THRESHOLD", 8, 0),
		RevealThreshold:   getFloat("SWIPE_REVEAL_THRESHOLD", 80, 1),
		RevealOffset:      getFloat("SWIPE_REVEAL_OFFSET", 96, 1),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnv("PORT", "8080"),
		AuthSecret:        strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTL:    time.Duration(getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1)) * time.Minute,
		DevUsername:       getEnv("DEV_USERNAME", "owner"),
		DevPassword:       strings.TrimSpace(os.Getenv("DEV_PASSWORD")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < min {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64, min float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < min {
		return fallback
	}
	return f
}
