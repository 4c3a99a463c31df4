package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidalarr/tidalarr/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port          string
	DBPath        string
	TokenPath     string
	DownloadsDir  string
	APIURL        string
	AuthURL       string
	LyricsURL     string
	ClientID      string
	ClientSecret  string
	CountryCode   string
	LidarrURL     string
	LidarrAPIKey  string
	Quality       string
	LogLevel      string
	LogFormat     string
	PollInterval  time.Duration
	CheckInterval time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", constants.DefaultPort),
		DBPath:        getEnv("DB_PATH", constants.DefaultDBPath),
		TokenPath:     getEnv("TIDAL_TOKEN_PATH", constants.DefaultTokenPath),
		DownloadsDir:  getEnv("DOWNLOADS_DIR", constants.DefaultDownloadsDir),
		APIURL:        getEnv("TIDAL_API_URL", constants.DefaultAPIURL),
		AuthURL:       getEnv("TIDAL_AUTH_URL", constants.DefaultAuthURL),
		LyricsURL:     getEnv("TIDAL_LYRICS_URL", constants.DefaultLyricsURL),
		ClientID:      getEnv("TIDAL_CLIENT_ID", constants.DefaultClientID),
		ClientSecret:  getEnv("TIDAL_CLIENT_SECRET", ""),
		CountryCode:   getEnv("TIDAL_COUNTRY_CODE", constants.DefaultCountryCode),
		LidarrURL:     getEnv("LIDARR_API_URL", ""),
		LidarrAPIKey:  getEnv("LIDARR_API_KEY", ""),
		Quality:       getEnv("QUALITY", constants.QualityLossless),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		PollInterval:  getDurationEnv("POLL_INTERVAL", constants.DefaultPollInterval),
		CheckInterval: getDurationEnv("CHECK_INTERVAL", constants.DefaultCheckInterval),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	// Validate Port
	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	// Validate DBPath
	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	// Validate TokenPath
	if c.TokenPath == "" {
		errors = append(errors, "TIDAL_TOKEN_PATH cannot be empty")
	}

	// Validate DownloadsDir
	if c.DownloadsDir == "" {
		errors = append(errors, "DOWNLOADS_DIR cannot be empty")
	}

	// Validate API URLs
	for _, u := range []struct{ name, value string }{
		{"TIDAL_API_URL", c.APIURL},
		{"TIDAL_AUTH_URL", c.AuthURL},
		{"TIDAL_LYRICS_URL", c.LyricsURL},
	} {
		if u.value == "" {
			errors = append(errors, fmt.Sprintf("%s cannot be empty", u.name))
		} else if _, err := url.Parse(u.value); err != nil {
			errors = append(errors, fmt.Sprintf("%s is not a valid URL: %s", u.name, u.value))
		}
	}

	// Validate ClientID
	if c.ClientID == "" {
		errors = append(errors, "TIDAL_CLIENT_ID cannot be empty")
	}

	// Lidarr settings are optional (manual enqueue still works without the
	// poller) but must be set together
	if (c.LidarrURL == "") != (c.LidarrAPIKey == "") {
		errors = append(errors, "LIDARR_API_URL and LIDARR_API_KEY must both be set or both be empty")
	}
	if c.LidarrURL != "" {
		if _, err := url.Parse(c.LidarrURL); err != nil {
			errors = append(errors, fmt.Sprintf("LIDARR_API_URL is not a valid URL: %s", c.LidarrURL))
		}
	}

	// Validate Quality
	validQualities := map[string]bool{
		constants.QualityLossless:      true,
		constants.QualityHiResLossless: true,
		constants.QualityHigh:          true,
		constants.QualityLow:           true,
	}
	if !validQualities[c.Quality] {
		errors = append(errors, fmt.Sprintf("QUALITY must be one of: LOSSLESS, HI_RES_LOSSLESS, HIGH, LOW, got: %s", c.Quality))
	}

	// Validate LogLevel
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	// Validate LogFormat
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	// Validate intervals
	if c.PollInterval <= 0 {
		errors = append(errors, fmt.Sprintf("POLL_INTERVAL must be positive, got: %s", c.PollInterval))
	}
	if c.CheckInterval <= 0 {
		errors = append(errors, fmt.Sprintf("CHECK_INTERVAL must be positive, got: %s", c.CheckInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getDurationEnv retrieves a duration environment variable with a fallback default
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
