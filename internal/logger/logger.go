// Package logger is a severity-tagged diagnostic sink for unsharedfs. It
// mirrors the teacher's convention of treating logging as a sink for
// diagnostics that cannot otherwise be returned as an error (see
// pathfs.Options.Logger): messages are never required for correctness, only
// for operator visibility.
package logger

import (
	"fmt"
	"log"
	"os"
)

// Severity tags every message the core emits.
type Severity int

const (
	DEBUG Severity = iota
	INFO
	NOTICE
	WARNING
	ERROR
)

func (s Severity) String() string {
	switch s {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case NOTICE:
		return "NOTICE"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger writes every message to standard error and, when a syslog sink was
// successfully opened, also forwards messages above DEBUG severity there
// under the "unsharedfs" identifier.
type Logger struct {
	stderr *log.Logger
	sink   syslogSink
}

// New opens the logger. foreground disables the syslog sink even when one
// is available, since foreground mode's whole point is to watch stderr.
func New(foreground bool) *Logger {
	l := &Logger{
		stderr: log.New(os.Stderr, "", log.LstdFlags),
	}
	if !foreground {
		l.sink = openSyslog()
	}
	return l
}

// Close releases the syslog sink, if any.
func (l *Logger) Close() error {
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

func (l *Logger) log(sev Severity, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.stderr.Printf("%s: %s", sev, msg)
	if l.sink != nil && sev > DEBUG {
		l.sink.write(sev, msg)
	}
}

func (l *Logger) Debugf(format string, args ...interface{})   { l.log(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})    { l.log(INFO, format, args...) }
func (l *Logger) Noticef(format string, args ...interface{})  { l.log(NOTICE, format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { l.log(WARNING, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})   { l.log(ERROR, format, args...) }

// syslogSink abstracts the platform syslog client so that non-unix builds
// (where log/syslog is unavailable) compile with a no-op sink instead.
type syslogSink interface {
	write(sev Severity, msg string)
	Close() error
}
