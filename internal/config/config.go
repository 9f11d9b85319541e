package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Auth
	JWTSecret string

	// Database
	DatabaseURL string

	// Server
	Port        string
	Environment string
	BaseURL     string
	LogLevel    string

	// Upload limits
	MaxUploadBytes int64

	// Image processing
	MaxImageDimension     int
	MinImageDimension     int
	ProcessingConcurrency int
	AVIFQuality           int
	AVIFSpeed             int
	WebPQuality           int

	// Serving
	ImageCacheSize     int
	DefaultUserPicture string
	DefaultBabyPicture string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),

		MaxImageDimension:     getEnvInt("MAX_IMAGE_DIMENSION", 300),
		MinImageDimension:     getEnvInt("MIN_IMAGE_DIMENSION", 200),
		ProcessingConcurrency: getEnvInt("PROCESSING_CONCURRENCY", runtime.NumCPU()),
		AVIFQuality:           getEnvInt("AVIF_QUALITY", 60),
		AVIFSpeed:             getEnvInt("AVIF_SPEED", 8),
		WebPQuality:           getEnvInt("WEBP_QUALITY", 85),

		ImageCacheSize:     getEnvInt("IMAGE_CACHE_SIZE", 256),
		DefaultUserPicture: getEnv("DEFAULT_USER_PICTURE", "/images/default-user.png"),
		DefaultBabyPicture: getEnv("DEFAULT_BABY_PICTURE", "/images/default-baby.png"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MinImageDimension <= 0 || c.MaxImageDimension <= 0 {
		return fmt.Errorf("image dimensions must be positive")
	}
	if c.MinImageDimension > c.MaxImageDimension {
		return fmt.Errorf("MIN_IMAGE_DIMENSION (%d) must not exceed MAX_IMAGE_DIMENSION (%d)", c.MinImageDimension, c.MaxImageDimension)
	}
	if c.ProcessingConcurrency <= 0 {
		return fmt.Errorf("PROCESSING_CONCURRENCY must be positive")
	}
	if c.ImageCacheSize <= 0 {
		return fmt.Errorf("IMAGE_CACHE_SIZE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
