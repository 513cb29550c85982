package cli

import (
	"io"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// NewLogger creates a go-kit logger writing JSON (or logfmt when format is
// "logfmt") to w, filtered to the given level. Unknown levels allow
// everything.
func NewLogger(w io.Writer, lvl, format string) log.Logger {
	var logger log.Logger
	if strings.ToLower(format) == "logfmt" {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	}
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(lvl) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}
