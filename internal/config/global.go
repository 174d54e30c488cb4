package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables holding credentials. They override the global config file.
const (
	EnvAccessToken       = "OPENCITATIONS_ACCESS_TOKEN"
	EnvCrossrefMailto    = "CROSSREF_MAILTO"
	EnvCrossrefPlusToken = "CROSSREF_PLUS_TOKEN"
	EnvS2APIKey          = "S2_API_KEY"
)

// Credentials are the secrets and contact details sent to remote services.
type Credentials struct {
	AccessToken       string `yaml:"opencitations_access_token,omitempty"`
	CrossrefMailto    string `yaml:"crossref_mailto,omitempty"`
	CrossrefPlusToken string `yaml:"crossref_plus_token,omitempty"`
	S2APIKey          string `yaml:"s2_api_key,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "unmash"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// globalConfigCache caches the loaded global credentials.
var globalConfigCache *Credentials

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/unmash/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads credentials from the global configuration file.
// Returns empty credentials (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*Credentials, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &Credentials{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	globalConfigCache = &creds
	return &creds, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// LoadCredentials resolves credentials from the environment, falling back to the
// global config file. envFiles are loaded into the environment first with
// godotenv; missing files are ignored and existing variables are never replaced.
func LoadCredentials(envFiles ...string) (Credentials, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Credentials{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	global, err := LoadGlobalConfig()
	if err != nil {
		return Credentials{}, err
	}
	creds := *global
	if v := os.Getenv(EnvAccessToken); v != "" {
		creds.AccessToken = v
	}
	if v := os.Getenv(EnvCrossrefMailto); v != "" {
		creds.CrossrefMailto = v
	}
	if v := os.Getenv(EnvCrossrefPlusToken); v != "" {
		creds.CrossrefPlusToken = v
	}
	if v := os.Getenv(EnvS2APIKey); v != "" {
		creds.S2APIKey = v
	}
	return creds, nil
}
