/*
github.com/tcrain/simnet - Transport and session layer for networked simulation testing.
Copyright (C) 2023 The project authors - tcrain

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

*/

/*
Basic logging functionality, a thin wrapper around zap so callers don't carry
logger handles through every constructor.
*/
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger

func init() {
	level := zapcore.WarnLevel
	switch strings.ToLower(os.Getenv("SIMNET_LOG_LEVEL")) {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	logger = l.Sugar()
}

// SetLogger replaces the package logger, for binaries that build their own.
func SetLogger(l *zap.Logger) {
	logger = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// Sync flushes any buffered log entries.
func Sync() error {
	return logger.Sync()
}

// Debug logs args at debug level.
func Debug(args ...interface{}) {
	logger.Debug(args...)
}

// Debugf logs args at debug level according to format.
func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// Info logs args at info level.
func Info(args ...interface{}) {
	logger.Info(args...)
}

// Infof logs args at info level according to format.
func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

// Warning logs args at warn level.
func Warning(args ...interface{}) {
	logger.Warn(args...)
}

// Warningf logs args at warn level according to format.
func Warningf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// Error logs args at error level.
func Error(args ...interface{}) {
	logger.Error(args...)
}

// Errorf logs args at error level according to format.
func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}
