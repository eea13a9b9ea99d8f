package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Backend selection. Components never read the environment themselves;
	// the chosen implementations are constructed once and injected.
	StorageBackend  string // "local" | "s3"
	JobStoreBackend string // "json" | "postgres"
	DispatchMode    string // "inline" | "pool" | "redis"

	UploadDir  string
	CacheDir   string
	ScratchDir string

	DatabaseURL string
	RedisURL    string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey      string
	GenModel      string
	GenMaxRetries int

	WorkerCount int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		StorageBackend:  getEnv("STORAGE_BACKEND", "local"),
		JobStoreBackend: getEnv("JOBSTORE_BACKEND", "json"),
		DispatchMode:    getEnv("DISPATCH_MODE", "pool"),
		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		CacheDir:        getEnv("CACHE_DIR", "outputs/cache"),
		ScratchDir:      getEnv("SCRATCH_DIR", os.TempDir()),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AwsAccessKey:    getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:    getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:       getEnv("AWS_REGION", "us-east-2"),
		BucketName:      getEnv("BUCKET_NAME", "metaforge-docs"),
		AIAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GenModel:        getEnv("GEN_MODEL", "gemini-1.5-flash"),
		GenMaxRetries:   getEnvInt("GEN_MAX_RETRIES", 5),
		WorkerCount:     getEnvInt("WORKER_COUNT", 2),
	}

	if cfg.JobStoreBackend == "postgres" && cfg.DatabaseURL == "" {
		log.Fatal("JOBSTORE_BACKEND=postgres but DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
