package logger

// PrefixedLogger tags every message with the name of the session that
// produced it, so interleaved sessions stay readable on stdout.
type PrefixedLogger struct {
	inner  Logger
	prefix string
}

func NewPrefixedLogger(inner Logger, prefix string) *PrefixedLogger {
	return &PrefixedLogger{inner: inner, prefix: prefix}
}

func (p *PrefixedLogger) Prefix() string { return p.prefix }

func (p *PrefixedLogger) tag(msg string) string {
	return "[" + p.prefix + "] " + msg
}

func (p *PrefixedLogger) SetLogLevel(levelStr string) { p.inner.SetLogLevel(levelStr) }
func (p *PrefixedLogger) GetLogLevel() string         { return p.inner.GetLogLevel() }

func (p *PrefixedLogger) With(args ...any) Logger {
	return NewPrefixedLogger(p.inner.With(args...), p.prefix)
}

func (p *PrefixedLogger) Trace(msg string, args ...any) { p.inner.Trace(p.tag(msg), args...) }
func (p *PrefixedLogger) Debug(msg string, args ...any) { p.inner.Debug(p.tag(msg), args...) }
func (p *PrefixedLogger) Info(msg string, args ...any)  { p.inner.Info(p.tag(msg), args...) }
func (p *PrefixedLogger) Warn(msg string, args ...any)  { p.inner.Warn(p.tag(msg), args...) }

func (p *PrefixedLogger) Error(msg string, err error, args ...any) {
	p.inner.Error(p.tag(msg), err, args...)
}

func (p *PrefixedLogger) Fatal(msg string, err error, args ...any) {
	p.inner.Fatal(p.tag(msg), err, args...)
}
