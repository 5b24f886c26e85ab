// Package logging supplies the Logger contract used by the worker
// package, taken by interface rather than a concrete type.
package logging

import "github.com/sirupsen/logrus"

// Logger is the minimal surface every component logs through. It is
// satisfied by *logrus.Logger/*logrus.Entry.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NewLogrus returns a *logrus.Logger with logrus's default text output,
// set to the given level.
func NewLogrus(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	return l
}

// Noop discards every call; useful as a zero-value-safe default so
// callers aren't forced to thread a logger through everywhere.
type Noop struct{}

func (Noop) Debugf(string, ...interface{}) {}
func (Noop) Infof(string, ...interface{})  {}
func (Noop) Warnf(string, ...interface{})  {}
func (Noop) Errorf(string, ...interface{}) {}
