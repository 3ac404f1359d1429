// Package config loads application configuration from an optional JSON
// file with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	EarthEngine EarthEngineConfig `json:"earth_engine"`
	Pinata      PinataConfig      `json:"pinata"`
	Storage     StorageConfig     `json:"storage"`
	Batch       BatchConfig       `json:"batch"`
	Security    SecurityConfig    `json:"security"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig represents postgres configuration. Persistence is
// optional; an empty host disables it.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// Enabled reports whether database persistence is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// EarthEngineConfig points at the remote statistics provider.
type EarthEngineConfig struct {
	BaseURL    string `json:"base_url"`
	Project    string `json:"project"`
	MaxRetries int    `json:"max_retries"`
}

// PinataConfig holds IPFS pinning credentials.
type PinataConfig struct {
	JWT       string `json:"jwt"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// StorageConfig configures optional S3 artifact uploads.
type StorageConfig struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Prefix string `json:"prefix"`
}

// Enabled reports whether artifact uploads are configured.
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// BatchConfig configures directory processing and scheduling.
type BatchConfig struct {
	InputDir        string `json:"input_dir"`
	OutputDir       string `json:"output_dir"`
	ContinueOnError bool   `json:"continue_on_error"`
	CronSchedule    string `json:"cron_schedule"`
}

// SecurityConfig holds API authentication settings.
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "farm_analysis",
			SSLMode: "disable",
		},
		EarthEngine: EarthEngineConfig{
			Project:    "nuwa-digital-twin",
			MaxRetries: 3,
		},
		Batch: BatchConfig{
			InputDir:  "data/farms/input",
			OutputDir: "data/farms/output",
		},
		Logging: LoggingConfig{Level: "info"},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if baseURL := os.Getenv("EARTH_ENGINE_BASE_URL"); baseURL != "" {
		config.EarthEngine.BaseURL = baseURL
	}
	if project := os.Getenv("EARTH_ENGINE_PROJECT"); project != "" {
		config.EarthEngine.Project = project
	}
	if jwt := os.Getenv("PINATA_JWT"); jwt != "" {
		config.Pinata.JWT = jwt
	}
	if key := os.Getenv("PINATA_API_KEY"); key != "" {
		config.Pinata.APIKey = key
	}
	if secret := os.Getenv("PINATA_API_SECRET"); secret != "" {
		config.Pinata.APISecret = secret
	}
	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if region := os.Getenv("STORAGE_REGION"); region != "" {
		config.Storage.Region = region
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
