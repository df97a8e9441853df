// Package bootstrap wires the application components together: logger,
// configuration and the embedded store.
package bootstrap

import (
	"fmt"
	"os"

	"pyrothor/config"
	"pyrothor/storage"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output at the
// given level (debug, info, warn, error). An unknown level falls back to info.
func InitLogger(logLevel string) (*zap.Logger, *zap.SugaredLogger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(
		consoleEncoder,
		zapcore.AddSync(os.Stderr),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads and validates configuration from path.
func InitConfig(path string, sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sugar.Infow("Config loaded",
		"server_endpoint", cfg.Server.Endpoint,
		"database_path", cfg.Database.Path,
		"retention_days", cfg.Database.RetentionDays)

	return cfg, nil
}

// OpenStore opens the embedded rule store. The caller owns it and must
// close it on shutdown.
func OpenStore(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.RuleStore, error) {
	store, err := storage.Open(cfg.Database.Path, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}
