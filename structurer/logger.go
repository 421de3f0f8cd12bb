package structurer

import "go.uber.org/zap"

// Logger wraps the process logger together with the function it currently
// reports on.
type Logger struct {
	*zap.SugaredLogger
	fn string
}

// ForFunction returns a logger scoped to one function name.
func (l *Logger) ForFunction(name string) *Logger {
	return &Logger{SugaredLogger: l.With("function", name), fn: name}
}

// Function returns the scoped function name.
func (l *Logger) Function() string {
	return l.fn
}
