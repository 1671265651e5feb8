// Package sklogimpl holds the pluggable logger behind package sklog. It is
// separate from sklog so that Logger implementations can import it without
// creating an import cycle.
package sklogimpl

import (
	"fmt"
	"os"
	"sync"
)

// Severity of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

var severityNames = []string{"DEBUG", "INFO", "WARNING", "ERROR", "FATAL"}

func (s Severity) String() string {
	if s < Debug || s > Fatal {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// Logger is the interface every log backend implements.
type Logger interface {
	// Log writes a single line. If format is empty the args are formatted with
	// fmt.Sprint, otherwise with fmt.Sprintf. depth is the number of stack
	// frames between the original caller and Log.
	Log(depth int, severity Severity, format string, args ...interface{})

	// Flush any buffered lines.
	Flush()
}

var (
	mutex  sync.RWMutex
	logger Logger
	level  = Debug
)

// SetLogger changes the Logger used by package sklog.
func SetLogger(l Logger) {
	mutex.Lock()
	defer mutex.Unlock()
	logger = l
}

// SetLevel drops every line below the given severity.
func SetLevel(s Severity) {
	mutex.Lock()
	defer mutex.Unlock()
	level = s
}

// Log sends the line to the current Logger. Fatal lines exit the process.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	mutex.RLock()
	l, minLevel := logger, level
	mutex.RUnlock()
	if l != nil && severity >= minLevel {
		l.Log(depth+1, severity, format, args...)
	}
	if severity == Fatal {
		if l != nil {
			l.Flush()
		}
		os.Exit(1)
	}
}

// Flush the current Logger.
func Flush() {
	mutex.RLock()
	defer mutex.RUnlock()
	if logger != nil {
		logger.Flush()
	}
}
