package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Port        string
	Environment string

	AdminAPIToken        string
	WebhookSigningSecret string

	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Versioned knowledge repository (AWS CodeCommit).
	AWSRegion         string
	KnowledgeRepoName string
	KnowledgeBranch   string
	CommitAuthorName  string
	CommitAuthorEmail string

	// Idempotency records become reclaimable after this many seconds.
	ExecutionTTLSeconds int64

	// Classifications that route a task email. The mapping is configuration
	// because it is the most likely point of future change.
	EmailRouteClassifications []string
	TaskEmailFrom             string
	TaskEmailTo               string

	ChatAPIBaseURL string
	ChatBotToken   string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "loretree"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Port:        getenv("PORT", "8080"),
		Environment: getenv("ENVIRONMENT", "development"),

		AdminAPIToken:        strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		WebhookSigningSecret: strings.TrimSpace(getenv("WEBHOOK_SIGNING_SECRET", "")),

		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "loretree"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     10,
		DBMaxOpenConn:     100,
		DBConnMaxLifetime: 3600,
		DBConnMaxIdleTime: 60,

		AWSRegion:         getenv("AWS_REGION", "us-east-1"),
		KnowledgeRepoName: getenv("KNOWLEDGE_REPO_NAME", "loretree-knowledge"),
		KnowledgeBranch:   getenv("KNOWLEDGE_BRANCH", "main"),
		CommitAuthorName:  getenv("COMMIT_AUTHOR_NAME", "Loretree"),
		CommitAuthorEmail: getenv("COMMIT_AUTHOR_EMAIL", "bot@loretree.local"),

		ExecutionTTLSeconds: getenvInt64("EXECUTION_TTL_SECONDS", 7*24*3600),

		EmailRouteClassifications: parseList(getenv("EMAIL_ROUTE_CLASSIFICATIONS", "task")),
		TaskEmailFrom:             strings.TrimSpace(getenv("TASK_EMAIL_FROM", "")),
		TaskEmailTo:               strings.TrimSpace(getenv("TASK_EMAIL_TO", "")),

		ChatAPIBaseURL: strings.TrimRight(strings.TrimSpace(getenv("CHAT_API_BASE_URL", "")), "/"),
		ChatBotToken:   strings.TrimSpace(getenv("CHAT_BOT_TOKEN", "")),
	}

	return &cfg
}

// RoutesEmail reports whether the given classification routes a task email.
func (c *Config) RoutesEmail(classification string) bool {
	for _, name := range c.EmailRouteClassifications {
		if strings.EqualFold(name, classification) {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
