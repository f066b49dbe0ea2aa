package backfill

import (
	"github.com/rs/zerolog"

	"github.com/yitech/candlestore/adapter"
)

// logLevel maps a response tag to a log level: debug for empty windows,
// warn for retriable conditions, error for protocol-shape failures, and
// critical-equivalent for not_found.
func logLevel(tag adapter.ResponseTag) zerolog.Level {
	switch tag {
	case adapter.NoData:
		return zerolog.DebugLevel
	case adapter.RateLimited, adapter.ServerError:
		return zerolog.WarnLevel
	case adapter.APIFailure:
		return zerolog.ErrorLevel
	case adapter.NotFound:
		return zerolog.ErrorLevel // critical: terminates the symbol
	case adapter.TimeoutError:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
