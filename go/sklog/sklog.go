// Package sklog defines the logging functions used across the code base,
// e.g. Infof, Errorf. The backend is chosen with SetLogger and defaults to
// stderr.
package sklog

import (
	"os"

	"go.treeherder.org/infra/go/sklog/sklogimpl"
	"go.treeherder.org/infra/go/sklog/stdlogging"
)

// SetLogger must run in init; otherwise an early log line could hit a nil
// logger.
func init() {
	sklogimpl.SetLogger(stdlogging.New(os.Stderr))
}

// SetLogger replaces the process wide logger.
func SetLogger(l sklogimpl.Logger) {
	sklogimpl.SetLogger(l)
}

// SetDebug turns Debug level lines on or off.
func SetDebug(enabled bool) {
	if enabled {
		sklogimpl.SetLevel(sklogimpl.Debug)
	} else {
		sklogimpl.SetLevel(sklogimpl.Info)
	}
}

// Functions ending in f use fmt.Sprintf to format the arguments, the others
// use fmt.Sprint.

func Debug(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Debug, "", msg...)
}

func Debugf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Debug, format, v...)
}

func Info(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Info, "", msg...)
}

func Infof(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Info, format, v...)
}

func Warning(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Warning, "", msg...)
}

func Warningf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Warning, format, v...)
}

func Error(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Error, "", msg...)
}

func Errorf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Error, format, v...)
}

// ErrorfWithDepth lets helpers report the location of their caller. A depth
// of 1 reports the caller's caller.
func ErrorfWithDepth(depth int, format string, v ...interface{}) {
	sklogimpl.Log(1+depth, sklogimpl.Error, format, v...)
}

// Fatal* exits the program after logging.
func Fatal(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Fatal, "", msg...)
}

func Fatalf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Fatal, format, v...)
}

func Flush() {
	sklogimpl.Flush()
}
