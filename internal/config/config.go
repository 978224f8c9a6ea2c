// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type TypesenseConfig struct {
	Enabled bool
	Host    string
	Port    int
	APIKey  string
}

// RunConfig holds the defaults applied to a measurement run when the
// triggering event does not override them.
type RunConfig struct {
	DefaultModel             string
	DefaultTemperature       float64
	DefaultMaxTokens         int
	CompletionTimeoutSeconds int
	SystemPrompt             string
	DispatchCron             string
}

type Config struct {
	Port                      string
	Environment               string
	InngestEventKey           string
	InngestSigningKey         string
	OpenAIAPIKey              string
	AnthropicAPIKey           string
	AzureOpenAIEndpoint       string
	AzureOpenAIKey            string
	AzureOpenAIDeploymentName string
	DatabaseURL               string
	SlackWebhookURL           string
	Database                  DatabaseConfig
	Typesense                 TypesenseConfig
	Run                       RunConfig
}

// DatabaseConfig holds the Postgres connection and pool settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
}

const defaultSystemPrompt = "You are a helpful assistant. When asked for recommendations, answer with a ranked list of your top 3 choices, best first, and a short reason for each."

func Load() *Config {
	config := &Config{
		Port:                      getEnv("PORT", "8000"),
		Environment:               getEnv("ENVIRONMENT", "development"),
		InngestEventKey:           os.Getenv("INNGEST_EVENT_KEY"),
		InngestSigningKey:         os.Getenv("INNGEST_SIGNING_KEY"),
		OpenAIAPIKey:              os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:           os.Getenv("ANTHROPIC_API_KEY"),
		AzureOpenAIEndpoint:       os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIKey:            os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIDeploymentName: os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		SlackWebhookURL:           os.Getenv("SLACK_WEBHOOK_URL"),
	}

	// Parse database configuration
	dbConfig, err := parseDatabaseConfig()
	if err != nil {
		// If DATABASE_URL parsing fails, try individual env vars as fallback
		dbConfig = DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "pria"),
			SSLMode:         getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		}
	}
	config.Database = dbConfig

	config.Typesense = TypesenseConfig{
		Enabled: getEnvBool("TYPESENSE_ENABLED", false),
		Host:    getEnv("TYPESENSE_HOST", "typesense"),
		Port:    getEnvInt("TYPESENSE_PORT", 8108),
		APIKey:  getEnv("TYPESENSE_API_KEY", "xyz"),
	}

	config.Run = RunConfig{
		DefaultModel:             getEnv("PRIA_DEFAULT_MODEL", "gpt-4.1"),
		DefaultTemperature:       getEnvFloat("PRIA_DEFAULT_TEMPERATURE", 0.7),
		DefaultMaxTokens:         getEnvInt("PRIA_DEFAULT_MAX_TOKENS", 2000),
		CompletionTimeoutSeconds: getEnvInt("PRIA_COMPLETION_TIMEOUT_SECONDS", 120),
		SystemPrompt:             getEnv("PRIA_SYSTEM_PROMPT", defaultSystemPrompt),
		DispatchCron:             getEnv("PRIA_DISPATCH_CRON", "*/15 * * * *"),
	}

	return config
}

// ConnString builds the lib/pq keyword/value connection string.
func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func parseDatabaseConfig() (DatabaseConfig, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL not set")
	}

	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if len(parsedURL.Path) < 2 {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL has no database name")
	}

	config := DatabaseConfig{
		Host:            parsedURL.Hostname(),
		Port:            5432, // default
		User:            parsedURL.User.Username(),
		Name:            parsedURL.Path[1:], // remove leading slash
		SSLMode:         getEnv("DB_SSLMODE", "require"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
	}

	if password, ok := parsedURL.User.Password(); ok {
		config.Password = password
	}

	if parsedURL.Port() != "" {
		if port, err := strconv.Atoi(parsedURL.Port()); err == nil {
			config.Port = port
		}
	}

	if sslMode := parsedURL.Query().Get("sslmode"); sslMode != "" {
		config.SSLMode = sslMode
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
