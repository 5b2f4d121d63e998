// Package logging builds the process-wide zap logger from the logging
// config section: level, rotating file output, console echo, and an
// optional tee into the Store's logs table.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// RecordSink receives one structured log record per call. Implemented by
// the Store (write_log_record). Sink errors are swallowed by the caller so
// that logging itself can never fail a request (see the log-sink recursion
// rule in the error-handling design).
type RecordSink interface {
	WriteLogRecord(ts time.Time, level, module, function, message string, context []byte) error
}

// Config mirrors the `logging` section of config/config_v4.json.
type Config struct {
	Level        string `mapstructure:"level"`
	FilePath     string `mapstructure:"file_path"`
	MaxSizeMB    int    `mapstructure:"rotation_size_mb"`
	MaxBackups   int    `mapstructure:"rotation_backups"`
	Console      bool   `mapstructure:"console"`
	DBEnabled    bool   `mapstructure:"db_enabled"`
	Format       string `mapstructure:"format"` // "json" or "console"
}

// DefaultConfig matches the default rotation (100 MB x 3 backups).
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		FilePath:   "logs/hhwatch.log",
		MaxSizeMB:  100,
		MaxBackups: 3,
		Console:    true,
		DBEnabled:  true,
		Format:     "json",
	}
}

// New builds a *zap.Logger from cfg. sink may be nil; when non-nil and
// cfg.DBEnabled is true, log records are additionally written to the store.
func New(cfg Config, sink RecordSink) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var cores []zapcore.Core

	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSizeOr(cfg.MaxSizeMB, 100),
			MaxBackups: maxBackupsOr(cfg.MaxBackups, 3),
			Compress:   false,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	if cfg.Console {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(zapStdout)), level))
	}

	if cfg.DBEnabled && sink != nil {
		cores = append(cores, newDBCore(sink, level))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

func maxSizeOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func maxBackupsOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
