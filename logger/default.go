package logger

import "io"

var defLogger Logger = NewSlog(InfoLevel, false)

func Debug(msg string, keysAndValues ...any) {
	defLogger.Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	defLogger.Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	defLogger.Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	defLogger.Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	defLogger.Fatal(msg, keysAndValues...)
}

// SetLevel sets the level of the default logger.
func SetLevel(level Level) {
	defLogger.SetLevel(level)
}

// GetLogger returns the default logger.
func GetLogger() Logger {
	return defLogger
}

// SetLogger replaces the default logger. A nil logger installs a discarding one.
func SetLogger(l Logger) {
	if l == nil {
		l = NewDiscard()
	}
	defLogger = l
}

func With(keyValues ...any) Logger {
	return defLogger.With(keyValues...)
}

// NewDiscard returns a logger that drops every record.
func NewDiscard() Logger {
	return NewSlogWithWriter(io.Discard, ErrorLevel, false, false)
}
