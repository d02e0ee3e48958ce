package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/cacheback"
)

// Logger adapts a *logrus.Entry to cacheback.Logger.
type Logger struct{ E *logrus.Entry }

var _ cacheback.Logger = Logger{}

func (l Logger) Debug(msg string, f cacheback.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f cacheback.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f cacheback.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f cacheback.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }
