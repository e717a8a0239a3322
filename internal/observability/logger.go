package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the configured global logger with app and installs the result
// as log.Logger. Call it after logging.Configure.
func InitLogger(app string) zerolog.Logger {
	logger := log.Logger.With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// LineSink adapts a logger into a line callback safe for concurrent use.
func LineSink(logger zerolog.Logger) func(line string) {
	return func(line string) {
		logger.Info().Msg(line)
	}
}
