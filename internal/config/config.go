package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	LogLevel                  string
	JWTSecret                 string
	JWTRefreshSecret          string
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	Database                  DatabaseConfig
	Mongo                     MongoConfig
	SentryDSN                 string
	DefaultPageLimit          int
	MaxUploadMB               int
	Client                    ClientConfig
}

// DatabaseConfig holds the relational (MySQL) connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// MongoConfig holds the document store connection details
type MongoConfig struct {
	URI      string
	Database string
}

// ClientConfig is used by the CLI subcommands that talk to a running server
type ClientConfig struct {
	BaseURL         string
	Token           string
	RefreshCooldown time.Duration
}

var defaults = map[string]any{
	"PORT":                         "3001",
	"ORIGIN":                       "http://localhost:4200",
	"NODE_ENV":                     "development",
	"LOG_LEVEL":                    "info",
	"JWT_SECRET":                   "default_jwt_secret",
	"JWT_REFRESH_SECRET":           "default_refresh_secret",
	"JWT_EXPIRATION_MINUTES":       15,
	"JWT_REFRESH_EXPIRATION_HOURS": 168, // 7 days
	"DB_HOST":                      "localhost",
	"DB_PORT":                      "3306",
	"DB_USERNAME":                  "root",
	"DB_PASSWORD":                  "",
	"DB_NAME":                      "patient_records",
	"MONGODB_URI":                  "mongodb://localhost:27017",
	"MONGODB_DATABASE":             "patient_records",
	"SENTRY_DSN":                   "",
	"DEFAULT_PAGE_LIMIT":           20,
	"MAX_UPLOAD_MB":                10,
	"API_BASE_URL":                 "http://localhost:3001",
	"API_TOKEN":                    "",
	"PATIENT_REFRESH_COOLDOWN":     "60s",
}

// LoadConfig loads configuration from a .env file (when present) and the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	dbConfig := DatabaseConfig{
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		Username: v.GetString("DB_USERNAME"),
		Password: v.GetString("DB_PASSWORD"),
		Name:     v.GetString("DB_NAME"),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	jwtExpMinutes := v.GetInt("JWT_EXPIRATION_MINUTES")
	if jwtExpMinutes <= 0 {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %q", v.GetString("JWT_EXPIRATION_MINUTES"))
	}

	jwtRefreshExpHours := v.GetInt("JWT_REFRESH_EXPIRATION_HOURS")
	if jwtRefreshExpHours <= 0 {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %q", v.GetString("JWT_REFRESH_EXPIRATION_HOURS"))
	}

	pageLimit := v.GetInt("DEFAULT_PAGE_LIMIT")
	if pageLimit <= 0 {
		return nil, fmt.Errorf("invalid DEFAULT_PAGE_LIMIT: %q", v.GetString("DEFAULT_PAGE_LIMIT"))
	}

	cooldown, err := time.ParseDuration(v.GetString("PATIENT_REFRESH_COOLDOWN"))
	if err != nil {
		return nil, fmt.Errorf("invalid PATIENT_REFRESH_COOLDOWN: %w", err)
	}

	return &Config{
		Port:                      v.GetString("PORT"),
		Origin:                    v.GetString("ORIGIN"),
		Environment:               v.GetString("NODE_ENV"),
		LogLevel:                  v.GetString("LOG_LEVEL"),
		JWTSecret:                 v.GetString("JWT_SECRET"),
		JWTRefreshSecret:          v.GetString("JWT_REFRESH_SECRET"),
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		Database:                  dbConfig,
		Mongo: MongoConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
		},
		SentryDSN:        v.GetString("SENTRY_DSN"),
		DefaultPageLimit: pageLimit,
		MaxUploadMB:      v.GetInt("MAX_UPLOAD_MB"),
		Client: ClientConfig{
			BaseURL:         v.GetString("API_BASE_URL"),
			Token:           v.GetString("API_TOKEN"),
			RefreshCooldown: cooldown,
		},
	}, nil
}

// IsProduction reports whether cookies should be marked Secure
func (c *Config) IsProduction() bool {
	return c.Environment != "development"
}
