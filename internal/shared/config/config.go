package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMaxUploadSize is the upload limit applied when none is configured (10MB).
const DefaultMaxUploadSize int64 = 10 << 20

// Config holds application configuration.
type Config struct {
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`

	DatabaseURL string `yaml:"databaseUrl"`
	AutoMigrate bool   `yaml:"autoMigrate"`

	CORSAllowOrigins    []string `yaml:"corsAllowOrigins"`
	UploadRatePerSecond float64  `yaml:"uploadRatePerSecond"`
	UploadBurst         int      `yaml:"uploadBurst"`

	ObjectStoreType string `yaml:"objectStore"`
	LocalStoreDir   string `yaml:"localStoreDir"`
	AWSRegion       string `yaml:"awsRegion"`
	S3Bucket        string `yaml:"s3Bucket"`
	S3Prefix        string `yaml:"s3Prefix"`
	SSEKMSKeyID     string `yaml:"sseKmsKeyId"`
	MinioEndpoint   string `yaml:"minioEndpoint"`
	MinioAccessKey  string `yaml:"minioAccessKey"`
	MinioSecretKey  string `yaml:"minioSecretKey"`
	MinioBucket     string `yaml:"minioBucket"`
	MinioUseSSL     bool   `yaml:"minioUseSsl"`

	QueueBackend      string   `yaml:"queue"`
	RedisAddr         string   `yaml:"redisAddr"`
	RedisQueueKey     string   `yaml:"redisQueueKey"`
	SQSQueueURL       string   `yaml:"sqsQueueUrl"`
	SQSVisibilitySecs int      `yaml:"sqsVisibilitySeconds"`
	KafkaBrokers      []string `yaml:"kafkaBrokers"`
	KafkaTopic        string   `yaml:"kafkaTopic"`
	KafkaGroupID      string   `yaml:"kafkaGroupId"`
	MemoryQueueSize   int      `yaml:"memoryQueueSize"`

	MaxUploadSize int64  `yaml:"maxUploadSize"`
	VerifyContent bool   `yaml:"verifyContent"`
	DedupMode     string `yaml:"dedupMode"`

	WorkerConcurrency int           `yaml:"workerConcurrency"`
	JobTimeout        time.Duration `yaml:"jobTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	SweepInterval     time.Duration `yaml:"sweepInterval"`
	StaleAfter        time.Duration `yaml:"staleAfter"`
	SweepBatchSize    int           `yaml:"sweepBatchSize"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:                "8080",
		Env:                 "dev",
		LogLevel:            "info",
		CORSAllowOrigins:    []string{"http://localhost:5173"},
		UploadBurst:         10,
		UploadRatePerSecond: 1,
		ObjectStoreType:     "local",
		LocalStoreDir:       "./data/uploads",
		MinioBucket:         "course-documents",
		QueueBackend:        "memory",
		RedisAddr:           "localhost:6379",
		RedisQueueKey:       "coursedocs:extraction",
		SQSVisibilitySecs:   300,
		KafkaBrokers:        []string{"localhost:9092"},
		KafkaTopic:          "document.extraction",
		KafkaGroupID:        "extraction-workers",
		MemoryQueueSize:     1024,
		MaxUploadSize:       DefaultMaxUploadSize,
		DedupMode:           "off",
		WorkerConcurrency:   4,
		JobTimeout:          2 * time.Minute,
		ShutdownTimeout:     30 * time.Second,
		SweepInterval:       time.Minute,
		StaleAfter:          10 * time.Minute,
		SweepBatchSize:      100,
	}
}

// Load reads configuration from an optional YAML file and environment variables.
// Environment variables take precedence over the file.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			log.Printf("config: ignoring %s: %v", path, err)
		}
	}
	applyEnv(&cfg)

	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}
	return cfg
}

func loadYAMLFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = normalizeEnv(getEnv("ENV", cfg.Env))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.AutoMigrate = getEnvBool("AUTO_MIGRATE", cfg.AutoMigrate)
	if raw := os.Getenv("CORS_ALLOW_ORIGIN"); raw != "" {
		cfg.CORSAllowOrigins = splitAndTrim(raw)
	}
	cfg.UploadRatePerSecond = getEnvFloat("UPLOAD_RATE_PER_SECOND", cfg.UploadRatePerSecond)
	cfg.UploadBurst = getEnvInt("UPLOAD_BURST", cfg.UploadBurst)

	cfg.ObjectStoreType = normalizeStoreType(getEnv("OBJECT_STORE", cfg.ObjectStoreType))
	cfg.LocalStoreDir = getEnv("UPLOAD_FOLDER", getEnv("LOCAL_STORE_DIR", cfg.LocalStoreDir))
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	cfg.SSEKMSKeyID = getEnv("SSE_KMS_KEY_ID", cfg.SSEKMSKeyID)
	cfg.MinioEndpoint = getEnv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getEnv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getEnv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getEnvBool("MINIO_USE_SSL", cfg.MinioUseSSL)

	cfg.QueueBackend = normalizeQueueBackend(getEnv("QUEUE_BACKEND", cfg.QueueBackend))
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisQueueKey = getEnv("REDIS_QUEUE_KEY", cfg.RedisQueueKey)
	cfg.SQSQueueURL = getEnv("SQS_QUEUE_URL", cfg.SQSQueueURL)
	cfg.SQSVisibilitySecs = getEnvInt("SQS_VISIBILITY_TIMEOUT_SECONDS", cfg.SQSVisibilitySecs)
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		cfg.KafkaBrokers = splitAndTrim(raw)
	}
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.MemoryQueueSize = getEnvInt("MEMORY_QUEUE_SIZE", cfg.MemoryQueueSize)

	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", cfg.MaxUploadSize)
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	cfg.VerifyContent = getEnvBool("VERIFY_CONTENT", cfg.VerifyContent)
	cfg.DedupMode = normalizeDedupMode(getEnv("DEDUP_MODE", cfg.DedupMode))

	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", cfg.WorkerConcurrency)
	cfg.JobTimeout = getEnvDuration("JOB_TIMEOUT", cfg.JobTimeout)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.StaleAfter = getEnvDuration("STALE_AFTER", cfg.StaleAfter)
	cfg.SweepBatchSize = getEnvInt("SWEEP_BATCH_SIZE", cfg.SweepBatchSize)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("config: %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s invalid float: %v", key, err)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func normalizeQueueBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "redis":
		return "redis"
	case "sqs":
		return "sqs"
	case "kafka":
		return "kafka"
	default:
		return "memory"
	}
}

func normalizeDedupMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "container":
		return "container"
	default:
		return "off"
	}
}
