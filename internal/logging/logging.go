package logging

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// SetupLogging configures the process-wide logger. Format is either
// "text" or "json"; an empty format means text.
func SetupLogging(loglevel, format string) error {
	log.SetOutput(os.Stdout)

	switch format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	level, err := log.ParseLevel(loglevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %v", loglevel, err)
	}

	log.SetLevel(level)

	return nil
}
