package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// LogrusAdapter routes watermill's logging into logrus
type LogrusAdapter struct {
	log logrus.FieldLogger
}

// NewLogrusAdapter wraps l as a watermill logger
func NewLogrusAdapter(l logrus.FieldLogger) watermill.LoggerAdapter {
	return &LogrusAdapter{log: l}
}

func (a *LogrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).WithError(err).Errorln(msg)
}

func (a *LogrusAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Infoln(msg)
}

func (a *LogrusAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Debugln(msg)
}

// Trace is folded into debug; watermill traces every message
func (a *LogrusAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Debugln(msg)
}

func (a *LogrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LogrusAdapter{log: a.log.WithFields(logrus.Fields(fields))}
}
