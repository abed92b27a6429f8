package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	Environment string

	StorageDriver string
	DatabaseDSN   string

	FirebaseProject            string
	FirebaseServiceAccountPath string
	FirebaseServiceAccountJSON string

	AuthProvider string
	JWTSecret    string
	JWTJWKSURL   string

	BlobBackend   string
	StorageBucket string
	LocalBlobDir  string

	BroadcastBackend string
	NotifyBackend    string
	RedisURL         string

	RateLimitMessagesPerMinute int
	RequestsPerMinutePerIP     int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		StorageDriver: getEnv("STORAGE_DRIVER", "sqlite"),
		DatabaseDSN:   getEnv("DATABASE_DSN", "schoolchat.db"),

		FirebaseProject:            getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),

		AuthProvider: getEnv("AUTH_PROVIDER", "jwt"),
		JWTSecret:    getEnv("JWT_SECRET", "your-secret-key"),
		JWTJWKSURL:   getEnv("JWT_JWKS_URL", ""),

		BlobBackend:   getEnv("BLOB_BACKEND", "local"),
		StorageBucket: getEnv("STORAGE_BUCKET", ""),
		LocalBlobDir:  getEnv("LOCAL_BLOB_DIR", "./data/attachments"),

		BroadcastBackend: getEnv("BROADCAST_BACKEND", "memory"),
		NotifyBackend:    getEnv("NOTIFY_BACKEND", "inline"),
		RedisURL:         getEnv("REDIS_URL", ""),

		RateLimitMessagesPerMinute: getEnvAsInt("RATE_LIMIT_MESSAGES_PER_MINUTE", 30),
		RequestsPerMinutePerIP:     getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
