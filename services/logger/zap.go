package logsvc

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/masomo-materials/core"
)

// NewZapLogger builds the console sink: JSON in production, colored text otherwise.
func NewZapLogger(conf *core.Config) (*zap.Logger, error) {
	var zconf zap.Config
	if conf.Env == "PROD" {
		zconf = zap.NewProductionConfig()
	} else {
		zconf = zap.NewDevelopmentConfig()
		zconf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !conf.Debug {
			zconf.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	}
	if conf.TestMode {
		zconf.Level = zap.NewAtomicLevelAt(zap.FatalLevel)
	}
	zconf.OutputPaths = []string{"stdout"}
	return zconf.Build(zap.AddCallerSkip(1))
}
