package config

import (
	"fmt"
	"path/filepath"

	"go-modelcart/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// Default transport settings applied when the config file leaves them unset.
const (
	DefaultUserAgent         = "Mozilla/5.0"
	DefaultConnectTimeoutSec = 30
	DefaultClientTimeoutSec  = 900
	DefaultMaxRetries        = 3
	DefaultSplit             = 4
)

// DefaultSupportedHosts is the advisory allow-list used by validation.
// Downloads from other hosts still proceed; they only draw a warning.
var DefaultSupportedHosts = []string{
	"civitai.com",
	"huggingface.co",
	"github.com",
	"drive.google.com",
	"mega.nz",
}

// defaultFolders maps each category to its directory name under SavePath.
var defaultFolders = map[models.Category]string{
	models.CategoryModel:      "Stable-diffusion",
	models.CategoryVae:        "VAE",
	models.CategoryLora:       "Lora",
	models.CategoryEmbedding:  "embeddings",
	models.CategoryControlnet: "ControlNet",
	models.CategoryUpscale:    "ESRGAN",
	models.CategoryExtension:  "extensions",
	models.CategoryUnknown:    "Other",
}

// DefaultConfig returns a configuration carrying only the built-in defaults,
// for running without a config file.
func DefaultConfig() models.Config {
	var cfg models.Config
	applyDefaults(&cfg)
	return cfg
}

// LoadConfig reads the configuration from the specified path (defaulting to
// "config.toml") and applies defaults for unset transport settings.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	if cfg.SavePath == "" {
		log.Warn("Warning: SavePath is not set in config.toml")
	}
	applyDefaults(&cfg)

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// applyDefaults fills unset transport and validation settings.
func applyDefaults(cfg *models.Config) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ConnectTimeoutSec <= 0 {
		cfg.ConnectTimeoutSec = DefaultConnectTimeoutSec
	}
	if cfg.ClientTimeoutSec <= 0 {
		cfg.ClientTimeoutSec = DefaultClientTimeoutSec
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Split <= 0 {
		cfg.Split = DefaultSplit
	}
	if len(cfg.SupportedHosts) == 0 {
		cfg.SupportedHosts = DefaultSupportedHosts
	}
}

// BuildDestinations resolves the category -> directory mapping for a config.
// Every known category gets a default folder under SavePath; entries in
// cfg.Destinations override individual categories. An override naming a
// category that does not exist is a configuration error and fatal to the
// caller - it means the mapping itself is broken, not the input.
func BuildDestinations(cfg models.Config) (map[models.Category]string, error) {
	dests := make(map[models.Category]string, len(models.Categories))
	for _, cat := range models.Categories {
		dests[cat] = filepath.Join(cfg.SavePath, defaultFolders[cat])
	}

	for name, dir := range cfg.Destinations {
		cat := models.Category(name)
		if _, known := dests[cat]; !known {
			return nil, fmt.Errorf("destination override for unknown category %q", name)
		}
		if dir == "" {
			return nil, fmt.Errorf("destination override for category %q is empty", name)
		}
		if filepath.IsAbs(dir) {
			dests[cat] = dir
		} else {
			dests[cat] = filepath.Join(cfg.SavePath, dir)
		}
	}

	return dests, nil
}
