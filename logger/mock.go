package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger records log calls for assertions with testify/mock.
//
// Log methods are registered by method name with the message and the
// key/value slice as arguments:
//
//	m.On("Info", "command trace", []any{"tx", "NCHAN", "rx", "8"})
//
// With is registered with its key/value pairs expanded and must return the
// Logger to use; Fatal records the call and never exits.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

// NewMockLogger returns a MockLogger without expectations.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// AllowLevels accepts any call to the named log methods, without requiring
// them, and returns m.
func (m *MockLogger) AllowLevels(methods ...string) *MockLogger {
	for _, method := range methods {
		m.On(method, mock.Anything, mock.Anything).Return().Maybe()
	}

	return m
}

func (m *MockLogger) log(method string, msg string, keysAndValues []any) {
	m.MethodCalled(method, msg, keysAndValues)
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.log("Debug", msg, keysAndValues) }

func (m *MockLogger) Info(msg string, keysAndValues ...any) { m.log("Info", msg, keysAndValues) }

func (m *MockLogger) Warn(msg string, keysAndValues ...any) { m.log("Warn", msg, keysAndValues) }

func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.log("Error", msg, keysAndValues) }

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) { m.log("Fatal", msg, keysAndValues) }

func (m *MockLogger) SetLevel(level Level) {
	m.MethodCalled("SetLevel", level)
}

func (m *MockLogger) Level() Level {
	return m.MethodCalled("Level").Get(0).(Level)
}

// With returns the Logger registered for keyValues. An empty or nil return
// keeps logging on m.
func (m *MockLogger) With(keyValues ...any) Logger {
	args := m.MethodCalled("With", keyValues...)
	if len(args) == 0 {
		return m
	}
	if l, ok := args.Get(0).(Logger); ok && l != nil {
		return l
	}

	return m
}
