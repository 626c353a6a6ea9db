package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nekogravitycat/facility-booking-core/internal/config"
)

// NewLogger returns a JSON logger in production and a colored console logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == config.PROD_STRING {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stdout"}

	return cfg.Build()
}
