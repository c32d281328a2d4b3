package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"whatsgate/internal/constants"
	"whatsgate/internal/models"
	"whatsgate/internal/security"
)

var (
	ErrMissingTransportURL = models.ConfigError{Message: "missing transport base URL"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
	ErrMissingMediaDir     = models.ConfigError{Message: "missing media storage directory"}
)

// LoadConfig reads the JSON config at path, fills defaults, and applies
// environment overrides. Overrides win over file values so deployments can
// keep endpoints out of the config file.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateDataPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Transport.BaseURL == "" {
		return ErrMissingTransportURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.StorageDir == "" {
		return ErrMissingMediaDir
	}

	if c.Transport.SessionName == "" {
		c.Transport.SessionName = constants.DefaultSessionName
	}
	if c.Transport.TimeoutSec <= 0 {
		c.Transport.TimeoutSec = constants.DefaultTransportTimeoutSec
	}
	if c.Database.TablePrefix == "" {
		c.Database.TablePrefix = constants.DefaultTablePrefix
	}
	if c.Media.FetchTimeoutSec <= 0 {
		c.Media.FetchTimeoutSec = constants.DefaultMediaFetchTimeoutSec
	}
	if c.Media.MaxSizeMB <= 0 {
		c.Media.MaxSizeMB = constants.DefaultMediaMaxSizeMB
	}
	if c.Crawler.TimeoutSec <= 0 {
		c.Crawler.TimeoutSec = constants.DefaultCrawlerTimeoutSec
	}
	if c.Reconnect.InitialBackoffMs <= 0 {
		c.Reconnect.InitialBackoffMs = constants.DefaultReconnectInitialMs
	}
	if c.Reconnect.MaxBackoffMs <= 0 {
		c.Reconnect.MaxBackoffMs = constants.DefaultReconnectMaxMs
	}
	if c.Reconnect.Multiplier <= 1 {
		c.Reconnect.Multiplier = constants.DefaultReconnectMultiplier
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("WHATSGATE_TRANSPORT_URL"); url != "" {
		c.Transport.BaseURL = url
	}
	if session := os.Getenv("WHATSGATE_SESSION_NAME"); session != "" {
		c.Transport.SessionName = session
	}
	if dbPath := os.Getenv("WHATSGATE_DB_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}
	if prefix := os.Getenv("WHATSGATE_TABLE_PREFIX"); prefix != "" {
		c.Database.TablePrefix = prefix
	}
	if dir := os.Getenv("WHATSGATE_MEDIA_DIR"); dir != "" {
		c.Media.StorageDir = dir
	}
	if crawler := os.Getenv("WHATSGATE_CRAWLER_URL"); crawler != "" {
		c.Crawler.URL = crawler
	}
	if port := os.Getenv("WHATSGATE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if level := os.Getenv("WHATSGATE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}
