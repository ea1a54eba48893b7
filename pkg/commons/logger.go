package commons

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging surface used across the codebase. It is a
// strict subset of zap's sugared API so *zap.SugaredLogger satisfies it
// directly.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalf(template string, args ...interface{})
	Sync() error
}

// NewApplicationLogger builds the process-wide logger: JSON to a rotating file
// when path is configured, console encoding to stderr otherwise.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	cfg := loggerConfig{level: zapcore.InfoLevel}
	for _, o := range opts {
		o(&cfg)
	}

	var core zapcore.Core
	if cfg.path != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core = zapcore.NewCore(enc, sink, cfg.level)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc := zapcore.NewConsoleEncoder(encCfg)
		core = zapcore.NewCore(enc, zapcore.Lock(os.Stderr), cfg.level)
	}

	return zap.New(core, zap.AddCaller()).Sugar(), nil
}

type loggerConfig struct {
	path  string
	level zapcore.Level
}

// Option configures NewApplicationLogger.
type Option func(*loggerConfig)

// WithLogFile routes output to a rotating file at path instead of stderr.
func WithLogFile(path string) Option {
	return func(c *loggerConfig) { c.path = path }
}

// WithLevel sets the minimum level from its string name ("debug", "info", ...).
// Unknown names fall back to info.
func WithLevel(name string) Option {
	return func(c *loggerConfig) {
		if lvl, err := zapcore.ParseLevel(name); err == nil {
			c.level = lvl
		}
	}
}
