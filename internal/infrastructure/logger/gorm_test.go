package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_LogMode(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	gormLog := NewGormLogger(zap.New(core), gormlogger.Info, time.Second)

	newLogger := gormLog.LogMode(gormlogger.Warn)

	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
	newGormLog, ok := newLogger.(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, newGormLog.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return "SELECT 1", 1 }

	t.Run("slow query is a warning with request fields", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Warn, 10*time.Millisecond)
		ctx := WithRequestID(context.Background(), "req-1")

		gormLog.Trace(ctx, time.Now().Add(-time.Second), query, nil)

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
		assert.Equal(t, "Slow SQL", logs[0].Message)
		assert.Equal(t, "req-1", logs[0].ContextMap()["request_id"])
	})

	t.Run("errors are logged", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Warn, time.Second)

		gormLog.Trace(context.Background(), time.Now(), query, errors.New("syntax error"))

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, "SQL Error", logs[0].Message)
	})

	t.Run("cancellation is not an error", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Warn, time.Second)

		gormLog.Trace(context.Background(), time.Now(), query, context.Canceled)

		assert.Empty(t, recorded.All())
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Silent, time.Nanosecond)

		gormLog.Trace(context.Background(), time.Now().Add(-time.Second), query, errors.New("x"))

		assert.Empty(t, recorded.All())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
}
