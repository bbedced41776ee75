// Package observability contains logging setup and the outcome factory
// decorators that attach logging/metrics to every minted outcome.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"nmpoll/pkg/config"
)

// SetupLogger builds the process logger from c, installs it as the zap
// global, and redirects the stdlib log package. One-shot runs log to
// stdout; a poller that writes to a file can enable rotation.
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
	enc := encoderFor(c)
	lvl := levelFor(c.Level)

	var cores []zapcore.Core
	for _, out := range c.Outputs {
		cores = append(cores, zapcore.NewCore(enc, syncerFor(out, c.Rotation), lvl))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.Development())
	}

	logger := zap.New(zapcore.NewTee(cores...), opts...)
	zap.ReplaceGlobals(logger)
	_, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
	return logger, nil
}

func levelFor(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func encoderFor(c config.LogConfig) zapcore.Encoder {
	if strings.EqualFold(c.Format, "json") {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	ec := zap.NewDevelopmentEncoderConfig()
	if c.Development {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

// syncerFor maps one configured output to its sink. Anything that is not
// stdout/stderr is a file path; rotation hands it to lumberjack, which
// applies its own defaults for unset limits.
func syncerFor(out string, r config.RotationConfig) zapcore.WriteSyncer {
	switch strings.ToLower(out) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}
	if r.Enable {
		if strings.TrimSpace(r.Filename) != "" {
			out = r.Filename
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   out,
			MaxSize:    r.MaxSizeMB,
			MaxBackups: r.MaxBackups,
			MaxAge:     r.MaxAgeDays,
			Compress:   r.Compress,
		})
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(f)
}
