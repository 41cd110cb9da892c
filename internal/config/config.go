package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config is the relayd configuration.
type Config struct {
	Port                 string
	AllowedOrigins       []string
	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetimeMin int
	RedisURL             string
	RedisPassword        string
	CacheTTL             time.Duration
	JWTSecret            string
	StaleGameTTL         time.Duration
	CleanupInterval      time.Duration
}

const defaultJWTSecret = "your-secret-key-change-this-in-production"

func LoadConfig() *Config {
	port := GetEnv("PORT", "8080")

	// Local development origins are always allowed
	allowedOrigins := []string{
		"http://localhost:5173",
		"http://localhost:8080",
	}
	allowedOrigins = append(allowedOrigins, GetEnvAsList("ALLOWED_ORIGINS", nil)...)

	jwtSecret := GetEnv("JWT_SECRET", defaultJWTSecret)
	if jwtSecret == defaultJWTSecret {
		log.Warn().Msg("JWT_SECRET not set, using the development default")
	}

	return &Config{
		Port:                 port,
		AllowedOrigins:       allowedOrigins,
		DatabaseURL:          GetEnv("DATABASE_URL", GetEnv("DATABASE_URI", "")),
		DBMaxOpenConns:       GetEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       GetEnvAsInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetimeMin: GetEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5),
		RedisURL:             GetEnv("REDIS_URL", ""),
		RedisPassword:        GetEnv("REDIS_PASSWORD", ""),
		CacheTTL:             GetEnvAsDuration("CACHE_TTL", 10*time.Minute),
		JWTSecret:            jwtSecret,
		StaleGameTTL:         GetEnvAsDuration("STALE_GAME_TTL", 24*time.Hour),
		CleanupInterval:      GetEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
	}
}

// ClientConfig is what the connect4 client needs to reach the relay and
// to negotiate peer links.
type ClientConfig struct {
	RelayURL       string
	RelayAPIKey    string
	STUNServers    []string
	TURNServer     string
	TURNUsername   string
	TURNCredential string
	MoveDelay      time.Duration
	ConnectTimeout time.Duration
}

func LoadClientConfig() *ClientConfig {
	return &ClientConfig{
		RelayURL:       strings.TrimRight(GetEnv("RELAY_URL", ""), "/"),
		RelayAPIKey:    GetEnv("RELAY_API_KEY", ""),
		STUNServers:    GetEnvAsList("STUN_SERVERS", []string{"stun:stun.l.google.com:19302", "stun:global.stun.twilio.com:3478"}),
		TURNServer:     GetEnv("TURN_SERVER", ""),
		TURNUsername:   GetEnv("TURN_USERNAME", ""),
		TURNCredential: GetEnv("TURN_CREDENTIAL", ""),
		MoveDelay:      GetEnvAsDuration("MOVE_DELAY", 300*time.Millisecond),
		ConnectTimeout: GetEnvAsDuration("CONNECT_TIMEOUT", 30*time.Second),
	}
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Int("default", defaultValue).Msg("invalid integer, using default")
		return defaultValue
	}
	return value
}

// GetEnvAsDuration accepts Go durations ("90s") or a plain number of
// seconds.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn().Str("key", key).Str("value", valueStr).Dur("default", defaultValue).Msg("invalid duration, using default")
	return defaultValue
}

// GetEnvAsList splits a comma separated value, dropping empty entries.
func GetEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
