//go:build linux || darwin

package logger

import "log/syslog"

type unixSyslog struct {
	w *syslog.Writer
}

func openSyslog() syslogSink {
	w, err := syslog.New(syslog.LOG_DAEMON, "unsharedfs")
	if err != nil {
		return nil
	}
	return &unixSyslog{w: w}
}

func (u *unixSyslog) write(sev Severity, msg string) {
	switch sev {
	case ERROR:
		u.w.Err(msg)
	case WARNING:
		u.w.Warning(msg)
	case NOTICE:
		u.w.Notice(msg)
	default:
		u.w.Info(msg)
	}
}

func (u *unixSyslog) Close() error {
	return u.w.Close()
}
