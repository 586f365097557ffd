package log

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

type gormWriter struct {
	log *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

// NewGormLogger routes gorm's slow query and error reports to the "gorm" zap logger.
func NewGormLogger() logger.Interface {
	return logger.New(
		gormWriter{log: zap.S().Named("gorm")},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}
