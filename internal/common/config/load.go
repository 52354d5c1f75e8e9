package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// LoadFile reads the yaml (or json, toml) file at filePath into rv, applying CustomHooks.
// "::" is used as the key delimiter so that keys containing dots, e.g. resource names, survive intact.
func LoadFile(filePath string, rv interface{}) error {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		err = errors.WithMessagef(err, "failed to read in %s", filePath)
		return errors.WithStack(err)
	}
	if err := v.Unmarshal(rv, CustomHooks...); err != nil {
		err = errors.WithMessagef(err, "failed to unmarshal %s", filePath)
		return errors.WithStack(err)
	}
	return nil
}
