// ABOUTME: Log setup shared by the server and player binaries
// ABOUTME: Logs go to a file, and also to stdout unless a TUI owns the terminal
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger. The returned closer
// releases the log file.
func SetupLogging(l LoggingConfig, console bool) (io.Closer, error) {
	logrus.SetLevel(l.LogLevel())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if l.File == "" {
		logrus.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(l.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	if console {
		logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	} else {
		logrus.SetOutput(f)
	}
	return f, nil
}
