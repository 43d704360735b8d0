package logger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observedGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Defaults(t *testing.T) {
	l, _ := observedGorm(gormlogger.Info)

	assert.Equal(t, gormlogger.Info, l.level)
	assert.Equal(t, 200*time.Millisecond, l.slowThreshold)
	assert.True(t, l.ignoreNotFound)
	assert.Equal(t, defaultMaxSQLLength, l.maxSQLLength)
}

func TestGormLogger_Options(t *testing.T) {
	l, _ := observedGorm(gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
		WithMaxSQLLength(64),
	)

	assert.Equal(t, 500*time.Millisecond, l.slowThreshold)
	assert.False(t, l.ignoreNotFound)
	assert.Equal(t, 64, l.maxSQLLength)
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	l, _ := observedGorm(gormlogger.Info)

	warn, ok := l.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, warn.level)
	assert.Equal(t, gormlogger.Info, l.level)
}

func TestGormLogger_PrintfLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		log     func(l *GormLogger)
		want    zapcore.Level
		message string
	}{
		{"info", gormlogger.Info, func(l *GormLogger) { l.Info(context.Background(), "migrated %s", "crm_actions") }, zapcore.InfoLevel, "migrated crm_actions"},
		{"warn", gormlogger.Warn, func(l *GormLogger) { l.Warn(context.Background(), "retry %d", 2) }, zapcore.WarnLevel, "retry 2"},
		{"error", gormlogger.Error, func(l *GormLogger) { l.Error(context.Background(), "failed") }, zapcore.ErrorLevel, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, recorded := observedGorm(tt.level)
			tt.log(l)

			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.want, logs[0].Level)
			assert.Equal(t, tt.message, logs[0].Message)
		})
	}
}

func TestGormLogger_InfoSuppressedBelowLevel(t *testing.T) {
	l, recorded := observedGorm(gormlogger.Warn)
	l.Info(context.Background(), "noise")
	assert.Empty(t, recorded.All())
}

func TestGormLogger_TraceError(t *testing.T) {
	l, recorded := observedGorm(gormlogger.Error)

	l.Trace(context.Background(), time.Now(), statement("UPDATE crm_actions SET status = 'overdue'", 0), errors.New("deadlock"))

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "SQL Error", logs[0].Message)
	assert.Equal(t, "deadlock", logs[0].ContextMap()["error"])
}

func TestGormLogger_TraceNotFound(t *testing.T) {
	t.Run("ignored", func(t *testing.T) {
		l, recorded := observedGorm(gormlogger.Error)
		l.Trace(context.Background(), time.Now(), statement("SELECT * FROM customer_records", 0), gormlogger.ErrRecordNotFound)
		assert.Empty(t, recorded.All())
	})

	t.Run("logged when configured", func(t *testing.T) {
		l, recorded := observedGorm(gormlogger.Error, WithIgnoreRecordNotFoundError(false))
		l.Trace(context.Background(), time.Now(), statement("SELECT * FROM customer_records", 0), gormlogger.ErrRecordNotFound)
		require.Len(t, recorded.All(), 1)
	})
}

func TestGormLogger_TraceSlow(t *testing.T) {
	l, recorded := observedGorm(gormlogger.Warn, WithSlowThreshold(time.Millisecond))

	l.Trace(context.Background(), time.Now().Add(-time.Second), statement("SELECT * FROM ad_attributions", 10), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	assert.True(t, strings.HasPrefix(logs[0].Message, "SLOW SQL"))
}

func TestGormLogger_TraceSlowDisabled(t *testing.T) {
	l, recorded := observedGorm(gormlogger.Warn, WithSlowThreshold(0))
	l.Trace(context.Background(), time.Now().Add(-time.Hour), statement("SELECT 1", 1), nil)
	assert.Empty(t, recorded.All())
}

func TestGormLogger_TraceQueryAtInfo(t *testing.T) {
	l, recorded := observedGorm(gormlogger.Info)

	l.Trace(context.Background(), time.Now(), statement("SELECT * FROM referral_nodes", 5), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, zapcore.DebugLevel, logs[0].Level)
	assert.Equal(t, "SQL Query", logs[0].Message)
	assert.Equal(t, int64(5), logs[0].ContextMap()["rows"])
}

func TestGormLogger_TraceSilent(t *testing.T) {
	l, recorded := observedGorm(gormlogger.Silent)
	called := false
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		called = true
		return "SELECT 1", 1
	}, errors.New("boom"))

	assert.Empty(t, recorded.All())
	assert.False(t, called)
}

func TestGormLogger_TraceCarriesContextFields(t *testing.T) {
	l, recorded := observedGorm(gormlogger.Info)

	ctx := WithCustomerID(WithCorrelationID(context.Background(), "evt-42"), "cust-7")
	l.Trace(ctx, time.Now(), statement("SELECT * FROM crm_actions", 5), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "evt-42", fields["correlation_id"])
	assert.Equal(t, "cust-7", fields["customer_id"])
}

func TestGormLogger_TruncatesLongStatements(t *testing.T) {
	l, recorded := observedGorm(gormlogger.Info, WithMaxSQLLength(10))

	l.Trace(context.Background(), time.Now(), statement("SELECT * FROM communication_entries", 1), nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "SELECT * F...(truncated)", logs[0].ContextMap()["sql"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"unknown": gormlogger.Warn,
		"":        gormlogger.Warn,
	}
	for level, want := range tests {
		t.Run(level, func(t *testing.T) {
			assert.Equal(t, want, MapGormLogLevel(level))
		})
	}
}
