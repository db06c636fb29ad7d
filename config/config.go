package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppMode       string
	APIBaseURL    string
	SocketURL     string
	UserID        int
	AuthToken     string
	StoreBackend  string
	StorePath     string
	StoreKey      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Endpoint    string
	S3PublicBase  string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppMode:       getEnv("APP_MODE", "development"),
		APIBaseURL:    getEnv("API_BASE_URL", "http://localhost:8080"),
		SocketURL:     getEnv("SOCKET_URL", "ws://localhost:8080/socket"),
		UserID:        getEnvAsInt("USER_ID", 0),
		AuthToken:     getEnv("AUTH_TOKEN", ""),
		StoreBackend:  getEnv("STORE_BACKEND", "pebble"),
		StorePath:     getEnv("STORE_PATH", ".linkup-store"),
		StoreKey:      getEnv("STORE_KEY", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		S3Region:      getEnv("S3_REGION", ""),
		S3Bucket:      getEnv("S3_BUCKET", ""),
		S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3PublicBase:  getEnv("S3_PUBLIC_BASE", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
