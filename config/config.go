// Package config registers every lessontrack setting and loads them into viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/lessontrack/lessontrack/constant"
	"github.com/lessontrack/lessontrack/filesystem"
	"github.com/lessontrack/lessontrack/where"
	"github.com/spf13/viper"
)

// EnvKeyReplacer turns a setting key into its environment variable suffix.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Setup binds defaults and environment variables and reads lessontrack.toml from
// the config directory when it exists.
func Setup() error {
	viper.SetConfigName(constant.App)
	viper.SetConfigType("toml")
	viper.SetFs(filesystem.API())
	viper.AddConfigPath(where.Config())

	viper.SetEnvPrefix(constant.App)
	viper.SetEnvKeyReplacer(EnvKeyReplacer)
	for _, env := range EnvExposed {
		viper.MustBindEnv(env)
	}

	viper.SetTypeByDefaultValue(true)
	for name, field := range Default {
		viper.SetDefault(name, field.Value)
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

// Duration reads an integer setting and scales it by unit.
// Non-positive values fall back to the registered default.
func Duration(k string, unit time.Duration) time.Duration {
	n := viper.GetInt(k)
	if n <= 0 {
		if field, ok := Default[k]; ok {
			n, _ = field.Value.(int)
		}
	}
	return time.Duration(n) * unit
}
