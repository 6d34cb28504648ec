package config

import (
	"os"
	"strconv"
)

// Config centralizes runtime settings for the generation service.
type Config struct {
	TopicPrefix string

	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string

	APIBaseURL        string
	APIAuthEmail      string
	APIAuthPassword   string
	APITimeoutMS      int
	APIMaxRetries     int
	APIRateLimitRPS   float64
	APIRateLimitBurst int

	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	AdmissionTTLSeconds int

	SignatureSource string
	DatabaseURL     string
	ImageBasePath   string

	ArtifactBasePath string
}

const (
	SignatureSourceAPI      = "api"
	SignatureSourcePostgres = "postgres"
)

func Load() Config {
	return Config{
		TopicPrefix: getEnv("TOPIC_PREFIX", "controltower"),

		MQTTBrokerURL: getEnv("MQTT_BROKER_URL", ""),
		MQTTClientID:  getEnv("MQTT_CLIENT_ID", "reportpdf-1"),
		MQTTUsername:  getEnv("MQTT_USERNAME", ""),
		MQTTPassword:  getEnv("MQTT_PASSWORD", ""),

		APIBaseURL:        getEnv("API_BASE_URL", "https://localhost:7145"),
		APIAuthEmail:      getEnv("API_AUTH_EMAIL", ""),
		APIAuthPassword:   getEnv("API_AUTH_PASSWORD", ""),
		APITimeoutMS:      getEnvInt("API_TIMEOUT_MS", 60000),
		APIMaxRetries:     getEnvInt("API_MAX_RETRIES", 2),
		APIRateLimitRPS:   getEnvFloat("API_RATE_LIMIT_RPS", 10),
		APIRateLimitBurst: getEnvInt("API_RATE_LIMIT_BURST", 20),

		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		AdmissionTTLSeconds: getEnvInt("ADMISSION_TTL_SECONDS", 3600),

		SignatureSource: getEnv("SIGNATURE_SOURCE", SignatureSourceAPI),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ImageBasePath:   getEnv("IMAGE_BASE_PATH", "/var/lib/controltower/report-images"),

		ArtifactBasePath: getEnv("ARTIFACT_BASE_PATH", "artifacts"),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
