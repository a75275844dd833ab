package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/dataconnect-io/dataconnect/dcerrors"
)

// envPrefix namespaces environment variable overrides, so
// DATACONNECT_MESSAGING_PORT overrides messaging.port.
const envPrefix = "DATACONNECT"

// Load reads the document at path, applying defaults first and
// environment variables last, the same precedence order as
// am.Load/initViper but over a single file rather than a merge chain.
func Load(path string) (*Document, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, dcerrors.Wrap(err, "failed to unmarshal configuration document")
	}
	return &doc, nil
}

// LoadWithViper unmarshals a document from a caller-supplied Viper
// instance, for callers that need to layer additional sources on top
// (tests, embedders).
func LoadWithViper(v *viper.Viper) (*Document, error) {
	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, dcerrors.Wrap(err, "failed to unmarshal configuration document")
	}
	return &doc, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	bindMessagingEnvVars(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if ext := configType(path); ext != "" {
				v.SetConfigType(ext)
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, dcerrors.Wrapf(err, "failed to read config file %s", path)
			}
		}
	}

	return v, nil
}

func configType(path string) string {
	switch {
	case strings.HasSuffix(path, ".toml"):
		return "toml"
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "yaml"
	case strings.HasSuffix(path, ".json"):
		return "json"
	}
	return ""
}

// SetDefaults configures default values for every configuration option,
// in the style of am/defaults.go's SetDefaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("container.name", "dataconnect")
	v.SetDefault("container.version", "0.0.0")
	v.SetDefault("container.scanIntervalMs", 1000)
	v.SetDefault("container.maxConcurrentCycles", 1)
	v.SetDefault("container.logLevel", "info")

	v.SetDefault("tags.enabled", true)
	v.SetDefault("tags.persistToFile", false)
	v.SetDefault("tags.persistencePath", "tags.toml")

	v.SetDefault("messaging.enabled", true)
	v.SetDefault("messaging.transport", "inmemory")
	v.SetDefault("messaging.host", "127.0.0.1")
	v.SetDefault("messaging.port", 50051)
}

// bindMessagingEnvVars binds the remote backplane's bind address to
// plain *_HOST/*_PORT environment variables per spec §6, mirroring the
// teacher's BindSensitiveEnvVars pattern of naming specific env vars
// rather than relying solely on AutomaticEnv's prefixed replacement.
func bindMessagingEnvVars(v *viper.Viper) {
	v.BindEnv("messaging.host", "DATACONNECT_HOST", "HOST")
	v.BindEnv("messaging.port", "DATACONNECT_PORT", "PORT")
}
