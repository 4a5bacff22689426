package monarch

import "go.uber.org/zap"

// Logger is the structured logging interface used throughout the kernel.
// Every component (dispatcher, fiber scheduler, event controller, module
// library) logs exclusively through this interface, so a hosting program
// can redirect or silence framework logs without touching kernel code.
//
// Methods take variadic key-value pairs:
//
//	logger.Info("operation admitted", "op", op.ID(), "priority", op.Priority())
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// zapLogger adapts a *zap.SugaredLogger to the Logger interface. It backs
// NewLogger, NewDevelopmentLogger and NewNopLogger. MicroKernel does not
// build one itself: it logs through whatever Logger its caller passes, and
// a nil Logger turns its logging off.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger returns the default production Logger, backed by zap.
func NewLogger() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{s: z.Sugar()}
}

// NewDevelopmentLogger returns a Logger tuned for local development:
// human-readable, colorized, synchronous output.
func NewDevelopmentLogger() Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{s: z.Sugar()}
}

// NewNopLogger returns a Logger that discards everything, for tests that
// don't care about log output.
func NewNopLogger() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (l *zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
