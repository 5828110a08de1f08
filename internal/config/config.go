package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddress string
	JWTSecret     string
	JWTExpiration time.Duration
	CORSOrigins   []string

	// Store selects the persistence backend: "mongo" or "memory".
	Store    string
	MongoURI string
	MongoDB  string
	DataDir  string

	// ImageStore selects where issue photos live: "local" or "gcs".
	ImageStore        string
	UploadDir         string
	GCSBucket         string
	MaxUploadSizeMB   int64
	SafeSearchEnabled bool

	// Classifier is "auto", "rules", or "provider:model" (e.g. "openai:gpt-4o-mini").
	Classifier        string
	ClassifierTimeout time.Duration

	Location *time.Location

	RecaptchaSecret string
	SendGridAPIKey  string
	NoticeFromEmail string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	return &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTExpiration: getDuration("JWT_EXPIRATION", 24*time.Hour),
		CORSOrigins:   getList("CORS_ORIGINS", []string{"http://localhost:5173"}),

		Store:    strings.ToLower(getEnv("STORE", "mongo")),
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDB:  getEnv("MONGO_DB", "civicpulse"),
		DataDir:  getEnv("DATA_DIR", "./data"),

		ImageStore:        strings.ToLower(getEnv("IMAGE_STORE", "local")),
		UploadDir:         getEnv("UPLOAD_DIR", "./uploads"),
		GCSBucket:         getEnv("GCS_BUCKET", ""),
		MaxUploadSizeMB:   int64(getInt("MAX_UPLOAD_SIZE_MB", 10)),
		SafeSearchEnabled: getBool("SAFESEARCH_ENABLED", false),

		Classifier:        getEnv("CLASSIFIER", "auto"),
		ClassifierTimeout: getDuration("CLASSIFIER_TIMEOUT", 8*time.Second),

		Location: getLocation("TIMEZONE"),

		RecaptchaSecret: getEnv("RECAPTCHA_SECRET", ""),
		SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),
		NoticeFromEmail: getEnv("NOTICE_FROM_EMAIL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getLocation resolves the zone used for "since local midnight" decisions.
func getLocation(key string) *time.Location {
	name := strings.TrimSpace(getEnv(key, ""))
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("[config] unknown %s=%q, using local time: %v", key, name, err)
		return time.Local
	}
	return loc
}
