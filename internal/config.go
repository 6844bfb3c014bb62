package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
	"mediasift/internal/acquisition"
	"mediasift/internal/api"
	"mediasift/internal/database"
	"mediasift/internal/face"
	"mediasift/internal/fetch"
	"mediasift/internal/http/catalog"
	"mediasift/internal/video"
)

// MediaSiftConfig is the top-level user configuration, typically
// supplied via a YAML file with env var overrides.
type MediaSiftConfig struct {
	Database    database.DatabaseConfig `yaml:"database" env-required:"true"`
	Catalog     catalog.Config          `yaml:"catalog" env-required:"true"`
	Redis       catalog.RedisConfig     `yaml:"redis"`
	Fetch       fetch.Config            `yaml:"fetch"`
	Face        face.Config             `yaml:"face" env-required:"true"`
	Video       video.Config            `yaml:"video"`
	Acquisition acquisition.Config      `yaml:"acquisition"`
	Rest        api.RestConfig          `yaml:"api"`
}

// LoadFromFile populates the config from the YAML file at the given
// path, with environment variables taking precedence. If the file does
// not exist the config is built from the environment alone.
func (config *MediaSiftConfig) LoadFromFile(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cleanenv.ReadEnv(config); err != nil {
			return fmt.Errorf("failed to load configuration from environment - %v", err.Error())
		}

		return nil
	}

	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from %s - %v", configPath, err.Error())
	}

	return nil
}

// DefaultConfigPath returns the path searched for the user config file
// when no explicit path is supplied on the command line.
func DefaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		panic(fmt.Sprintf("FAILURE to derive user home dir %s", err))
	}

	return filepath.Join(home, ".config", "mediasift", "config.yaml")
}
