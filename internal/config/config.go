package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port               string
	SlackBotToken      string
	SlackSigningSecret string
	TicketChannelID    string
	OpenAIAPIKey       string
	ExaAPIKey          string
	DatabaseURL        string
	RelevanceThreshold float64
	MaxRelevantThreads int
	ThreadFetchTimeout time.Duration
	LogLevel           string
	LogFormat          string
	Environment        string
}

func Load() *Config {
	return &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		TicketChannelID:    os.Getenv("SLACK_TICKET_CHANNEL_ID"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		ExaAPIKey:          os.Getenv("EXA_API_KEY"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RelevanceThreshold: getFloatOrDefault("RELEVANCE_THRESHOLD", 0.6),
		MaxRelevantThreads: getIntOrDefault("MAX_RELEVANT_THREADS", 10),
		ThreadFetchTimeout: time.Duration(getIntOrDefault("THREAD_FETCH_TIMEOUT_MS", 5000)) * time.Millisecond,
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "INFO"),
		LogFormat:          getEnvOrDefault("LOG_FORMAT", "text"),
		Environment:        getEnvOrDefault("ENVIRONMENT", "development"),
	}
}

func (c *Config) Validate() error {
	var problems []string

	if c.SlackBotToken == "" {
		problems = append(problems, "SLACK_BOT_TOKEN is required")
	}

	if c.SlackSigningSecret == "" {
		problems = append(problems, "SLACK_SIGNING_SECRET is required")
	}

	if c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}

	// Optional validations
	if c.SlackBotToken != "" && !strings.HasPrefix(c.SlackBotToken, "xoxb-") {
		problems = append(problems, "SLACK_BOT_TOKEN must start with 'xoxb-'")
	}

	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		problems = append(problems, "RELEVANCE_THRESHOLD must be between 0 and 1")
	}

	if c.MaxRelevantThreads <= 0 {
		problems = append(problems, "MAX_RELEVANT_THREADS must be positive")
	}

	if c.ThreadFetchTimeout <= 0 {
		problems = append(problems, "THREAD_FETCH_TIMEOUT_MS must be positive")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLogLevels, strings.ToUpper(c.LogLevel)) {
		problems = append(problems, "LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR")
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		problems = append(problems, "LOG_FORMAT must be one of: text, json")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Environment) == "development"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
