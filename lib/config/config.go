package config

import (
	"bytes"
	"strings"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var log = logger.GetGoI2PLogger()

// EnvPrefix is the prefix of environment overrides, e.g.
// GOCIRCUIT_CONGESTION_CWND_MIN=248.
const EnvPrefix = "GOCIRCUIT"

// Load builds a configuration from the defaults, the optional YAML file at
// path, and GOCIRCUIT_* environment variables, in that order of precedence
// (later wins). The result is validated before it is returned.
func Load(path string) (ConfigDefaults, error) {
	v, err := newViper(path)
	if err != nil {
		return ConfigDefaults{}, err
	}
	return FromViper(v)
}

// FromViper decodes and validates a configuration from an already populated
// viper instance.
func FromViper(v *viper.Viper) (ConfigDefaults, error) {
	var cfg ConfigDefaults
	if err := v.Unmarshal(&cfg); err != nil {
		return ConfigDefaults{}, oops.Wrapf(err, "decode circuit configuration")
	}
	if err := Validate(cfg); err != nil {
		return ConfigDefaults{}, err
	}
	return cfg, nil
}

// newViper returns a viper instance seeded with every default key so that
// environment overrides apply to all of them.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	base, err := yaml.Marshal(Defaults())
	if err != nil {
		return nil, oops.Wrapf(err, "marshal configuration defaults")
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, oops.Wrapf(err, "seed configuration defaults")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			log.WithFields(logger.Fields{
				"at":     "config.Load",
				"reason": "config_file_unreadable",
				"path":   path,
			}).WithError(err).Error("failed to read configuration file")
			return nil, oops.Wrapf(err, "read configuration file %s", path)
		}
		log.WithField("path", v.ConfigFileUsed()).Debug("using configuration file")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}
