package util

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const Name = "fedwire"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host        string
		HttpPort    int    `yaml:"httpPort"`
		SslDomain   string `yaml:"sslDomain"`
		ExternalUrl string `yaml:"externalUrl"`
		Storage     string
		DbPath      string `yaml:"dbPath"`
		LogLevel    string `yaml:"logLevel"`
		LogPretty   bool   `yaml:"logPretty"`
		KeyPath     string `yaml:"keyPath"`
	}
	Federation struct {
		AllowLocalhost          bool     `yaml:"allowLocalhost"`
		AudienceDepth           int      `yaml:"audienceDepth"`
		FetchRelated            bool     `yaml:"fetchRelated"`
		RelatedFetchDepth       int      `yaml:"relatedFetchDepth"`
		RelatedTargeting        bool     `yaml:"relatedTargeting"`
		MaxRedirects            int      `yaml:"maxRedirects"`
		HttpTimeoutSeconds      int      `yaml:"httpTimeoutSeconds"`
		MaxConcurrentDeliveries int      `yaml:"maxConcurrentDeliveries"`
		SignDeliveries          bool     `yaml:"signDeliveries"`
		VerifyInboxSignatures   bool     `yaml:"verifyInboxSignatures"`
		UserAgent               string   `yaml:"userAgent"`
		BlockedWords            []string `yaml:"blockedWords"`
	}
	Pagination struct {
		DefaultPageSize int `yaml:"defaultPageSize"`
		MaxPageSize     int `yaml:"maxPageSize"`
	}
}

// BaseURL is the public origin used to mint activity ids and links.
func (c *AppConfig) BaseURL() string {
	if c.Conf.ExternalUrl != "" {
		return strings.TrimSuffix(c.Conf.ExternalUrl, "/")
	}
	return fmt.Sprintf("https://%s", c.Conf.SslDomain)
}

func (c *AppConfig) HttpTimeout() time.Duration {
	if c.Federation.HttpTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Federation.HttpTimeoutSeconds) * time.Second
}

func ReadConf() (*AppConfig, error) {
	configPath := StatePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		log.Info().Str("path", configPath).Msg("Config: file not found, using embedded defaults")
		buf = embeddedConfig
		writeDefaultConf()
	}

	return parseConf(buf)
}

// writeDefaultConf leaves a copy of the embedded defaults in ConfigDir for the
// operator to edit.
func writeDefaultConf() {
	dir, err := ConfigDir()
	if err != nil {
		log.Warn().Err(err).Msg("Config: no config directory for defaults")
		return
	}
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, embeddedConfig, 0644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Config: could not write default config")
		return
	}
	log.Info().Str("path", path).Msg("Config: created default config file")
}

func parseConf(buf []byte) (*AppConfig, error) {
	c := &AppConfig{}

	// defaults for keys missing from older config files
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		return nil, fmt.Errorf("in embedded config: %w", err)
	}

	err := yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnv(c)
	return c, nil
}

func applyEnv(c *AppConfig) {
	if v := os.Getenv("FEDWIRE_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("FEDWIRE_HTTPPORT"); v != "" {
		c.Conf.HttpPort = envInt("FEDWIRE_HTTPPORT", v, c.Conf.HttpPort)
	}
	if v := os.Getenv("FEDWIRE_SSLDOMAIN"); v != "" {
		c.Conf.SslDomain = v
	}
	if v := os.Getenv("FEDWIRE_EXTERNAL_URL"); v != "" {
		c.Conf.ExternalUrl = v
	}
	if v := os.Getenv("FEDWIRE_STORAGE"); v != "" {
		c.Conf.Storage = v
	}
	if v := os.Getenv("FEDWIRE_DBPATH"); v != "" {
		c.Conf.DbPath = v
	}
	if v := os.Getenv("FEDWIRE_LOG_LEVEL"); v != "" {
		c.Conf.LogLevel = v
	}
	if v := os.Getenv("FEDWIRE_ALLOW_LOCALHOST"); v != "" {
		c.Federation.AllowLocalhost = v == "true"
	}
	if v := os.Getenv("FEDWIRE_AUDIENCE_DEPTH"); v != "" {
		c.Federation.AudienceDepth = envInt("FEDWIRE_AUDIENCE_DEPTH", v, c.Federation.AudienceDepth)
	}
	if v := os.Getenv("FEDWIRE_FETCH_RELATED"); v != "" {
		c.Federation.FetchRelated = v == "true"
	}
	if v := os.Getenv("FEDWIRE_VERIFY_SIGNATURES"); v != "" {
		c.Federation.VerifyInboxSignatures = v == "true"
	}
	if v := os.Getenv("FEDWIRE_HTTP_TIMEOUT"); v != "" {
		c.Federation.HttpTimeoutSeconds = envInt("FEDWIRE_HTTP_TIMEOUT", v, c.Federation.HttpTimeoutSeconds)
	}
}

func envInt(name, raw string, fallback int) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Err(err).Str("env", name).Msg("Ignoring invalid integer")
		return fallback
	}
	return v
}
