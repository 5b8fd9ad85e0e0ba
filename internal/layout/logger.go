package layout

// Logger is the minimal logging surface the package depends on; *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func orNopLogger(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}
