package configuration

import (
	"github.com/pkg/errors"

	"github.com/carbonsched/carbonsched/internal/common/config"
)

// Load reads a scheduler configuration from filePath, applies defaults and validates the result.
func Load(filePath string) (SchedulerConfig, error) {
	var c SchedulerConfig
	if err := config.LoadFile(filePath, &c); err != nil {
		return SchedulerConfig{}, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		config.LogValidationErrors(err)
		return SchedulerConfig{}, errors.WithMessagef(err, "invalid scheduler configuration %s", filePath)
	}
	return c, nil
}
