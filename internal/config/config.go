package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAPIBaseURL     = "http://127.0.0.1:8000"
	defaultPollAttempts   = 20
	defaultPollIntervalMs = 1500
	defaultRefreshSeconds = 30
	defaultRequestTimeout = 30
	defaultDBPath         = "data/mapp.db"
	defaultLogPath        = "logs/app.log"
)

type Config struct {
	APIBaseURL       string
	ProxyURL         string
	PlatformUserID   int64
	PlatformUsername string
	PollMaxAttempts  int
	PollInterval     time.Duration
	RefreshInterval  time.Duration
	RequestTimeout   time.Duration
	AutoStartTasks   bool
	OfflineGuard     bool
	DBPath           string
	LogPath          string
}

func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using default values")
	}

	platformUserID, _ := strconv.ParseInt(strings.TrimSpace(os.Getenv("PLATFORM_USER_ID")), 10, 64)

	return Config{
		APIBaseURL:       strings.TrimRight(stringWithDefault(os.Getenv("API_BASE_URL"), defaultAPIBaseURL), "/"),
		ProxyURL:         strings.TrimSpace(os.Getenv("HTTP_PROXY_URL")),
		PlatformUserID:   platformUserID,
		PlatformUsername: strings.TrimSpace(os.Getenv("PLATFORM_USERNAME")),
		PollMaxAttempts:  parseIntWithDefault(os.Getenv("POLL_MAX_ATTEMPTS"), defaultPollAttempts),
		PollInterval:     time.Duration(parseIntWithDefault(os.Getenv("POLL_INTERVAL_MS"), defaultPollIntervalMs)) * time.Millisecond,
		RefreshInterval:  time.Duration(parseIntWithDefault(os.Getenv("REFRESH_INTERVAL_SECONDS"), defaultRefreshSeconds)) * time.Second,
		RequestTimeout:   time.Duration(parseIntWithDefault(os.Getenv("REQUEST_TIMEOUT_SECONDS"), defaultRequestTimeout)) * time.Second,
		AutoStartTasks:   parseBoolWithDefault(os.Getenv("AUTO_START_TASKS"), true),
		OfflineGuard:     parseBoolWithDefault(os.Getenv("OFFLINE_GUARD"), false),
		DBPath:           stringWithDefault(os.Getenv("DB_PATH"), defaultDBPath),
		LogPath:          stringWithDefault(os.Getenv("LOG_PATH"), defaultLogPath),
	}
}

func stringWithDefault(value, defaultVal string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	return value
}

func parseIntWithDefault(value string, defaultVal int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(value); err == nil && v >= 0 {
		return v
	}
	return defaultVal
}

func parseBoolWithDefault(value string, defaultVal bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.ParseBool(value); err == nil {
		return v
	}
	return defaultVal
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API_BASE_URL %q", c.APIBaseURL)
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return fmt.Errorf("invalid HTTP_PROXY_URL: %w", err)
		}
	}
	if c.PollMaxAttempts <= 0 {
		return errors.New("POLL_MAX_ATTEMPTS must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL_MS must be positive")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("REFRESH_INTERVAL_SECONDS must be positive")
	}
	return nil
}

// PlatformUser implements identity.Platform from the environment. The
// ok result is false outside the host platform.
func (c Config) PlatformUser() (int64, string, bool) {
	if c.PlatformUserID <= 0 {
		return 0, "", false
	}
	return c.PlatformUserID, c.PlatformUsername, true
}
