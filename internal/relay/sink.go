package relay

import (
	"fmt"

	"github.com/danmuck/chatrelay/internal/observability"
	"github.com/rs/zerolog/log"
)

// LogSink receives one formatted line per lifecycle or routing event. It is called
// concurrently from session workers and must be safe for that.
type LogSink func(line string)

// DefaultSink writes lines through the process zerolog logger.
func DefaultSink() LogSink {
	return LogSink(observability.LineSink(log.Logger))
}

func (f LogSink) logf(format string, args ...any) {
	if f == nil {
		return
	}
	f(fmt.Sprintf(format, args...))
}
