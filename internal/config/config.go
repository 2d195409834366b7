package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// Storage locations
	DataDir  string // directory holding the JSON database files
	FilePath string // root directory for per-experiment attachment directories

	// Redis configuration
	RedisAddress string

	// JWT configuration
	JWTSecret string

	// Upload policy
	AllowedFiletypes   []string
	MaxFiles           int // files per experiment, notes file excluded
	MaxFilesizeMB      int
	MaxUserExperiments int
	MaxUsers           int
	NotesMaxBytes      int

	// Feature toggles
	UploadsAllowed   bool
	DownloadsAllowed bool
	EditsAllowed     bool
	NewUsersAllowed  bool

	SessionTTL time.Duration
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateRandomSecret(32)
		log.Println("Generated random JWT secret")
	}

	AppConfig = Config{
		ServerPort:         getEnv("PORT", "8080"),
		Environment:        getEnv("ENV", "development"),
		DataDir:            getEnv("DATA_DIR", "databases"),
		FilePath:           getEnv("FILE_PATH", "uploads"),
		RedisAddress:       getEnv("REDIS_ADDRESS", "localhost:6379"),
		JWTSecret:          jwtSecret,
		AllowedFiletypes:   splitList(getEnv("ALLOWED_FILETYPES", "abf,smr,mat,h5,txt,csv,zip,pdf")),
		MaxFiles:           getEnvInt("MAX_FILES", 10),
		MaxFilesizeMB:      getEnvInt("MAX_FILESIZE_MB", 100),
		MaxUserExperiments: getEnvInt("MAX_USER_EXPERIMENTS", 50),
		MaxUsers:           getEnvInt("MAX_USERS", 100),
		NotesMaxBytes:      getEnvInt("NOTES_MAX_BYTES", 10000),
		UploadsAllowed:     getEnvBool("UPLOADS_ALLOWED", true),
		DownloadsAllowed:   getEnvBool("DOWNLOADS_ALLOWED", true),
		EditsAllowed:       getEnvBool("EDITS_ALLOWED", true),
		NewUsersAllowed:    getEnvBool("NEW_USERS_ALLOWED", true),
		SessionTTL:         time.Duration(getEnvInt("SESSION_TTL_MINUTES", 720)) * time.Minute,
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s, using default %d\n", key, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// the legacy config format used 1/0 for toggles
	return value == "1" || strings.EqualFold(value, "true")
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// generateRandomSecret generates a random secret of the specified length
func generateRandomSecret(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	secret := make([]byte, length)
	for i := range secret {
		secret[i] = charset[random(len(charset))]
	}
	return string(secret)
}

// random returns a random integer between 0 and n-1
func random(n int) int {
	return int(time.Now().UnixNano()) % n
}
