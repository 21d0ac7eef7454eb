package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the service logger. Production mode ("prod" or "production") logs JSON at info level; anything else logs
// human-readable output at debug level. A non-empty file adds a rotated JSON sink.
func New(mode, file string) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := zap.DebugLevel
	console := zapcore.NewConsoleEncoder(encoderConfig)
	if isProduction(mode) {
		level = zap.InfoLevel
		console = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{zapcore.NewCore(console, zapcore.AddSync(os.Stdout), level)}
	if file != "" {
		rotated := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), rotated, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

func isProduction(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		return true
	}
	return false
}
