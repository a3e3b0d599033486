// Package config provides configuration management for the sysmon
// subgraph generator service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds sysmon-generator service configuration.
type Config struct {
	// Service
	ServiceName string
	Port        string
	LogLevel    string
	LogFormat   string

	// Kafka (raw-log bucket notifications)
	KafkaBrokers       []string
	KafkaNotifyTopic   string
	KafkaConsumerGroup string

	// Generator
	Workers int

	// S3 (payload retrieval and subgraph upload)
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	SubgraphBucket string
	SubgraphPrefix string

	// Seen-object cache
	SeenCacheEnabled bool
	SeenCacheTTL     time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Metrics
	MetricsEnabled bool
	MetricsPort    string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Service
		ServiceName: getEnv("SERVICE_NAME", "sysmon-generator"),
		Port:        getEnv("PORT", "8094"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),

		// Kafka
		KafkaBrokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaNotifyTopic:   getEnv("KAFKA_NOTIFY_TOPIC", "logs.sysmon.landed"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "sysmon-generator"),

		// Generator
		Workers: getEnvInt("GENERATOR_WORKERS", 8),

		// S3
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		SubgraphBucket: getEnv("SUBGRAPH_BUCKET", "unid-subgraphs-generated"),
		SubgraphPrefix: getEnv("SUBGRAPH_PREFIX", "sysmon"),

		// Seen-object cache
		SeenCacheEnabled: getEnvBool("SEEN_CACHE_ENABLED", true),
		SeenCacheTTL:     getEnvDuration("SEEN_CACHE_TTL", "24h"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),

		// Metrics
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9094"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
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

func getEnvDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
