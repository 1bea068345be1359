package client

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// retryLogger adapts zap to retryablehttp.LeveledLogger
type retryLogger struct {
	sugar *zap.SugaredLogger
}

// NewRetryLogger returns a retryablehttp logger backed by logger
func NewRetryLogger(logger *zap.Logger) retryablehttp.LeveledLogger {
	return retryLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}
