// Package stdlogging implements sklogimpl.Logger on top of
// github.com/jcgregorio/logger, writing to stderr or stdout.
package stdlogging

import (
	logger "github.com/jcgregorio/logger"
	"go.treeherder.org/infra/go/sklog/sklogimpl"
)

type stdlog struct {
	logger *logger.Logger
}

// New returns a sklogimpl.Logger that writes to a SyncWriter, such as
// os.Stdout or os.Stderr.
func New(dst logger.SyncWriter) sklogimpl.Logger {
	return &stdlog{
		logger: logger.NewFromOptions(&logger.Options{
			SyncWriter:   dst,
			DepthDelta:   3,
			IncludeDebug: true,
		}),
	}
}

// Log implements sklogimpl.Logger.
func (s *stdlog) Log(_ int, severity sklogimpl.Severity, format string, args ...interface{}) {
	switch severity {
	case sklogimpl.Debug:
		if format == "" {
			s.logger.Debug(args...)
			return
		}
		s.logger.Debugf(format, args...)
	case sklogimpl.Info:
		if format == "" {
			s.logger.Info(args...)
			return
		}
		s.logger.Infof(format, args...)
	case sklogimpl.Warning:
		if format == "" {
			s.logger.Warning(args...)
			return
		}
		s.logger.Warningf(format, args...)
	default:
		// Fatal is logged as an error, sklogimpl.Log does the exit so that
		// Flush runs first.
		if format == "" {
			s.logger.Error(args...)
			return
		}
		s.logger.Errorf(format, args...)
	}
}

// Flush implements sklogimpl.Logger.
func (s *stdlog) Flush() {}
