package utils

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger; a no-op until InitLogger runs
var Logger = zap.NewNop()

// InitLogger builds Logger from the environment: ENV=production selects
// sampled JSON at info level, anything else a coloured console at debug
// level. LOG_LEVEL overrides the level, SERVICE_NAME is added to every entry.
func InitLogger() {
	production := os.Getenv("ENV") == "production"

	var config zap.Config
	if production {
		config = zap.NewProductionConfig()
		config.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if level, err := zapcore.ParseLevel(raw); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	options := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	// Имя сервиса добавляется ко всем записям, чтобы логи gateway и subgraph можно было различить
	if service := os.Getenv("SERVICE_NAME"); service != "" {
		options = append(options, zap.Fields(zap.String("service", service)))
	}

	logger, err := config.Build(options...)
	if err != nil {
		panic(err)
	}
	Logger = logger
}

// InitTestLogger installs a no-op logger for unit tests
func InitTestLogger() {
	Logger = zap.NewNop()
}
