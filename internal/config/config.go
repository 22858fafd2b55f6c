package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the runtime settings of the console API.
type Config struct {
	Port            string
	StoreBackend    string // "mongo" or "memory"
	MongoURI        string
	MongoDB         string
	JWTSecret       string
	TokenTTL        time.Duration
	LogLevel        string
	CleanupSchedule string
	CORSOrigins     []string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	TelegramBotToken string
	TelegramChatID   string

	SMTPHost      string
	SMTPPort      string
	SMTPSender    string
	SMTPPassword  string
	NotifyEmailTo string
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "12h"))
	if err != nil {
		logrus.WithError(err).Warn("Invalid TOKEN_TTL, using 12h")
		ttl = 12 * time.Hour
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		StoreBackend:    getEnv("STORE_BACKEND", "mongo"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDB:         getEnv("MONGO_DB", "fleet_console"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTL:        ttl,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CleanupSchedule: getEnv("CLEANUP_SCHEDULE", "@hourly"),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),

		BootstrapAdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPSender:    os.Getenv("SMTP_SENDER"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		NotifyEmailTo: os.Getenv("NOTIFY_EMAIL_TO"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
