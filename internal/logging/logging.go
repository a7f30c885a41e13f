package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Setup configures the standard logrus logger, which every package logs
// through, and returns it for components that take a FieldLogger.
func Setup(format, level string) *logrus.Logger {
	logger := logrus.StandardLogger()
	Configure(logger, format, level)
	return logger
}

// Configure applies the output format and level to logger. Unknown
// levels fall back to info.
func Configure(logger *logrus.Logger, format, level string) {
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "time",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
			},
		})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stdout)
}
