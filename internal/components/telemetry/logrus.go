package telemetry

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogrusAPI implements API using github.com/sirupsen/logrus.
type LogrusAPI struct {
	logger *logrus.Logger
}

// NewLogrusAPI wraps a logrus logger, if `logger` is nil the standard logger is used.
func NewLogrusAPI(logger *logrus.Logger) LogrusAPI {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return LogrusAPI{logger: logger}
}

func (LogrusAPI) fields(params []any) logrus.Fields {
	fields := logrus.Fields{}
	for i, p := range params {
		fields[fmt.Sprintf("params.%d", i)] = p
	}
	return fields
}

func (l LogrusAPI) ReportBroken(id string, params ...any) {
	l.logger.WithField("id", id).WithFields(l.fields(params)).Error("broken component")
}

func (l LogrusAPI) ReportWarning(id string, params ...any) {
	l.logger.WithField("id", id).WithFields(l.fields(params)).Warn("warning")
}

func (l LogrusAPI) ReportDebug(message string, params ...any) {
	l.logger.WithFields(l.fields(params)).Debug(message)
}

func (l LogrusAPI) ReportCount(id string, count int64) {
	l.logger.WithFields(logrus.Fields{"id": id, "n": count}).Info("count")
}
