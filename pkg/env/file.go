package env

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable pointing at the config file.
const ConfigFileEnv = "TOUCHREMOTE_CONFIG"

var (
	fileOnce  sync.Once
	fileViper *viper.Viper
	fileErr   error
)

// ReadFile reads a YAML, TOML or JSON config file.
func ReadFile(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

// Section decodes a top-level section of v into out, leaving fields
// absent from the file untouched.
func Section(v *viper.Viper, name string, out interface{}) error {
	if v == nil || !v.IsSet(name) {
		return nil
	}
	if err := v.UnmarshalKey(name, out); err != nil {
		return fmt.Errorf("config section %q: %w", name, err)
	}
	return nil
}

// LoadSection decodes a section of the file named by TOUCHREMOTE_CONFIG.
// Packages call it from init before reading environment variables, so
// environment variables and flags override the file.
func LoadSection(name string, out interface{}) error {
	fileOnce.Do(func() {
		if path := os.Getenv(ConfigFileEnv); path != "" {
			fileViper, fileErr = ReadFile(path)
		}
	})
	if fileErr != nil {
		return fileErr
	}
	return Section(fileViper, name, out)
}
