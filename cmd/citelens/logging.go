package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Log formats accepted by --log-format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// setupLogging configures log for the given format and verbosity. Logs go to
// w so that stdout carries only command output.
func setupLogging(log *logrus.Logger, format string, verbose bool, w io.Writer) error {
	switch format {
	case LogFormatText:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	case LogFormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		return fmt.Errorf("invalid --log-format %q (valid: %s, %s)", format, LogFormatText, LogFormatJSON)
	}

	log.SetOutput(w)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return nil
}
