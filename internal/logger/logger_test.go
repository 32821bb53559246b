package logger

import "testing"

// TestForegroundLoggerDoesNotPanic exercises every severity level through
// the foreground (stderr-only) logger. foreground mode skips syslog
// entirely, so this runs the same on every platform and as any user.
func TestForegroundLoggerDoesNotPanic(t *testing.T) {
	log := New(true)
	defer log.Close()

	log.Debugf("debug %d", 1)
	log.Infof("info %d", 2)
	log.Noticef("notice %d", 3)
	log.Warningf("warning %d", 4)
	log.Errorf("error %d", 5)
}

func TestSeverityString(t *testing.T) {
	cases := map[Severity]string{
		DEBUG:        "DEBUG",
		INFO:         "INFO",
		NOTICE:       "NOTICE",
		WARNING:      "WARNING",
		ERROR:        "ERROR",
		Severity(99): "UNKNOWN",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("Severity(%d).String() = %q, want %q", sev, got, want)
		}
	}
}

func TestCloseWithoutSyslogSinkIsNoop(t *testing.T) {
	log := New(true)
	if err := log.Close(); err != nil {
		t.Errorf("Close() with no syslog sink: %v", err)
	}
}
