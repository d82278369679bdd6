package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                    string
	Env                     string
	LogLevel                string
	FirebaseCredentialsPath string
	PostgresUrl             string
	MongoURI                string
	StorageBackend          string // "firebase" or "minio"
	StorageBucket           string
	MinioEndpoint           string
	MinioAccessKey          string
	MinioSecretKey          string
	MinioPublicURL          string
	MinioUseSSL             bool
	SweepInterval           time.Duration // 0 disables the expiry sweep
}

func Load() *Config {
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase_credentials.json"),
		PostgresUrl:             getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		StorageBackend:          getEnv("STORAGE_BACKEND", "firebase"),
		StorageBucket:           getEnv("STORAGE_BUCKET", "stories-media"),
		MinioEndpoint:           getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinioPublicURL:          getEnv("MINIO_PUBLIC_URL", "http://localhost:9000"),
		MinioUseSSL:             getEnvBool("MINIO_USE_SSL", false),
		SweepInterval:           getEnvDuration("SWEEP_INTERVAL", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
