package logging

// nopLogger discards everything. It exists so components can take a Logger
// unconditionally; constructors normalize nil through OrNop.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Close() error                  { return nil }

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns l, or the no-op logger when l is nil. Every component
// constructor runs its injected logger through this, so logging is never a
// nil-check concern in call paths.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
