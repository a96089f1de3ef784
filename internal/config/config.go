package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

type Config struct {
	ListenAddr string
	LogLevel   string

	APIBaseURL     string
	AssetOriginURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionSecret []byte
	CookieSecure  bool

	CacheVersion       string
	CacheDSN           string
	PrecacheAssets     []string
	CacheSweepSchedule string

	KafkaBrokers []string
	KafkaTopic   string

	PaymentKeyID       string
	PaymentCallbackURL string
	MerchantName       string
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := Config{
		ListenAddr: getenv("LISTEN_ADDR", ":8080"),
		LogLevel:   getenv("LOG_LEVEL", "info"),

		APIBaseURL:     strings.TrimRight(must(os.Getenv("API_BASE_URL"), "API_BASE_URL"), "/"),
		AssetOriginURL: strings.TrimRight(must(os.Getenv("ASSET_ORIGIN_URL"), "ASSET_ORIGIN_URL"), "/"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       EnvIntDefault("REDIS_DB", 0),

		SessionSecret: []byte(must(os.Getenv("SESSION_SECRET"), "SESSION_SECRET")),
		CookieSecure:  EnvBoolDefault("COOKIE_SECURE", true),

		CacheVersion:       getenv("CACHE_VERSION", "machmate-cache-v1"),
		CacheDSN:           getenv("CACHE_DSN", "file:offline-cache.db"),
		PrecacheAssets:     CSV(getenv("PRECACHE_ASSETS", "/manifest.json,/favicon.ico,/robots.txt")),
		CacheSweepSchedule: getenv("CACHE_SWEEP_SCHEDULE", "@every 6h"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "machmate.client_events"),

		PaymentKeyID:       os.Getenv("PAYMENT_KEY_ID"),
		PaymentCallbackURL: os.Getenv("PAYMENT_CALLBACK_URL"),
		MerchantName:       getenv("MERCHANT_NAME", "MachMate"),
	}
	return cfg
}

// DeriveKey expands the session secret into an independent sub-key per purpose.
func (c Config) DeriveKey(purpose string) ([]byte, error) {
	return DeriveKey(c.SessionSecret, purpose)
}

func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("derive %s key: empty secret", purpose)
	}
	r := hkdf.New(sha256.New, secret, nil, []byte("machmate-web/"+purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(v, name string) string {
	if v == "" {
		log.Fatalf("missing required env %s", name)
	}
	return v
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
