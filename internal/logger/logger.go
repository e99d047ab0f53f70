// Package logger holds the process-wide logger shared by connectors and the
// streaming pipeline.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. It writes coloured, levelled lines to stdout.
var Log = New(os.Stdout)

func init() {
	if os.Getenv("DEBUG") == "true" {
		Log.SetLevel(logrus.DebugLevel)
		Log.Debug("** Debugger Active **")
	}
}

// New creates a logger writing to out at INFO level
func New(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	return l
}
