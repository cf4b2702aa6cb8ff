package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		Port          string
		SessionSecret string
	}
	Postgres struct {
		Host     string
		Port     string
		User     string
		Password string
		DBName   string
		SSLMode  string
	}
	Migrations struct {
		Path string
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Report struct {
		// Cron spec for the daily farmer sales report.
		Schedule string
	}
}

// Load reads configuration from the environment, optionally seeding it from a
// .env file first. Required values without defaults return an error.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}

	cfg.App.Port = getEnv("APP_PORT", "8080")
	cfg.App.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.App.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	cfg.Postgres.Host = os.Getenv("DB_HOST")
	if cfg.Postgres.Host == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	cfg.Postgres.User = os.Getenv("DB_USER")
	if cfg.Postgres.User == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	cfg.Postgres.Password = os.Getenv("DB_PASSWORD")
	cfg.Postgres.DBName = os.Getenv("DB_NAME")
	if cfg.Postgres.DBName == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Migrations.Path = getEnv("MIGRATIONS_PATH", "migrations")

	cfg.SMTP.Host = getEnv("MAIL_SERVER", "localhost")
	smtpPort := getEnv("MAIL_PORT", "587")
	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return nil, fmt.Errorf("invalid MAIL_PORT %q: %w", smtpPort, err)
	}
	cfg.SMTP.Port = port
	cfg.SMTP.Username = os.Getenv("MAIL_USERNAME")
	cfg.SMTP.Password = os.Getenv("MAIL_PASSWORD")
	cfg.SMTP.From = getEnv("MAIL_FROM", cfg.SMTP.Username)

	cfg.Report.Schedule = getEnv("REPORT_SCHEDULE", "@every 24h")

	return cfg, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User, c.Postgres.Password, c.Postgres.DBName, c.Postgres.SSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
