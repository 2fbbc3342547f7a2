package common

import (
	"sync/atomic"

	"go.uber.org/zap"
)

type LogLevel int32

const (
	DEBUG_INFO_DETAIL LogLevel = 1
	DEBUG_INFO                 = 2
	OPTIMIZER_STEP             = 4
	DEBUGGING                  = 8
	INFO                       = 16
	WARN                       = 32
	ERROR                      = 64
	FATAL                      = 128
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger replaces the process logger. passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

func Logger() *zap.Logger {
	return logger.Load()
}

func ShPrintf(logLevel LogLevel, fmtStl string, a ...interface{}) {
	if logLevel&LogLevelSetting == 0 {
		return
	}
	sugar := Logger().Sugar()
	switch {
	case logLevel >= ERROR:
		sugar.Errorf(fmtStl, a...)
	case logLevel >= WARN:
		sugar.Warnf(fmtStl, a...)
	case logLevel >= INFO:
		sugar.Infof(fmtStl, a...)
	default:
		sugar.Debugf(fmtStl, a...)
	}
}
