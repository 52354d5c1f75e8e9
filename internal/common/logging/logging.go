package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJson = "json"
	FormatCli  = "cli"
)

// ConfigureLogging sets up the global logrus logger. level is any level understood by logrus, e.g. "info";
// format is one of FormatText, FormatJson or FormatCli.
func ConfigureLogging(level, format string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.WithStack(err)
	}
	formatter, err := formatterFor(format)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetFormatter(formatter)
	log.SetOutput(os.Stdout)
	return nil
}

func formatterFor(format string) (log.Formatter, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return &log.TextFormatter{ForceColors: true, FullTimestamp: true}, nil
	case FormatJson:
		return &log.JSONFormatter{}, nil
	case FormatCli:
		return &CommandLineFormatter{}, nil
	default:
		return nil, errors.Errorf("unknown log format %q; must be one of text, json or cli", format)
	}
}
