// Package logger builds the process-wide zap logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger for "prod" and a colourised
// development logger otherwise.
func New(env string) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	switch env {
	case "prod", "production":
		l, err = zap.NewProduction()
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l, err = cfg.Build()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar().With("env", env), nil
}
