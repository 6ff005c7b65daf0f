package logger

import (
	"context"
	"time"

	"github.com/shoplane/accounts/pkg/ctxutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogBuilder accumulates fields for one log entry, pre-populated with
// tracking fields extracted from the request context.
type LogBuilder struct {
	ctx     context.Context
	level   zapcore.Level
	fields  []zap.Field
	message string
}

func newBuilder(ctx context.Context, level zapcore.Level, message string) *LogBuilder {
	b := &LogBuilder{
		ctx:     ctx,
		level:   level,
		fields:  make([]zap.Field, 0, 12),
		message: message,
	}
	b.extractContextFields()
	return b
}

// extractContextFields extracts tracking fields from context
func (b *LogBuilder) extractContextFields() {
	if b.ctx == nil {
		return
	}

	if requestID := ctxutil.GetRequestID(b.ctx); requestID != "" {
		b.fields = append(b.fields, zap.String("request_id", requestID))
	}
	if clientIP := ctxutil.GetClientIP(b.ctx); clientIP != "" {
		b.fields = append(b.fields, zap.String("client_ip", clientIP))
	}
	if userAgent := ctxutil.GetUserAgent(b.ctx); userAgent != "" {
		b.fields = append(b.fields, zap.String("user_agent", userAgent))
	}
	if userID, ok := ctxutil.GetUserID(b.ctx); ok {
		b.fields = append(b.fields, zap.Uint("user_id", userID))
	}
	if module := ctxutil.GetModule(b.ctx); module != "" {
		b.fields = append(b.fields, zap.String("module", module))
	}
	if function := ctxutil.GetFunction(b.ctx); function != "" {
		b.fields = append(b.fields, zap.String("function", function))
	}
	if duration := ctxutil.GetDuration(b.ctx); duration > 0 {
		b.fields = append(b.fields, zap.Duration("elapsed", duration))
	}
}

// Field methods
func (b *LogBuilder) String(key, value string) *LogBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *LogBuilder) Int(key string, value int) *LogBuilder {
	b.fields = append(b.fields, zap.Int(key, value))
	return b
}

func (b *LogBuilder) Int64(key string, value int64) *LogBuilder {
	b.fields = append(b.fields, zap.Int64(key, value))
	return b
}

func (b *LogBuilder) Uint(key string, value uint) *LogBuilder {
	b.fields = append(b.fields, zap.Uint(key, value))
	return b
}

func (b *LogBuilder) Bool(key string, value bool) *LogBuilder {
	b.fields = append(b.fields, zap.Bool(key, value))
	return b
}

func (b *LogBuilder) Duration(value time.Duration) *LogBuilder {
	b.fields = append(b.fields, zap.Duration("duration", value))
	return b
}

func (b *LogBuilder) Err(err error) *LogBuilder {
	b.fields = append(b.fields, zap.Error(err))
	return b
}

// Log emits the accumulated entry
func (b *LogBuilder) Log() {
	l := GetLogger()

	switch b.level {
	case zapcore.DebugLevel:
		l.Debug(b.message, b.fields...)
	case zapcore.InfoLevel:
		l.Info(b.message, b.fields...)
	case zapcore.WarnLevel:
		l.Warn(b.message, b.fields...)
	case zapcore.ErrorLevel:
		l.Error(b.message, b.fields...)
	}
}

// Global context logger helper functions
func DebugWithContext(ctx context.Context, message string) *LogBuilder {
	return newBuilder(ctx, zapcore.DebugLevel, message)
}

func InfoWithContext(ctx context.Context, message string) *LogBuilder {
	return newBuilder(ctx, zapcore.InfoLevel, message)
}

func WarnWithContext(ctx context.Context, message string) *LogBuilder {
	return newBuilder(ctx, zapcore.WarnLevel, message)
}

func ErrorWithContext(ctx context.Context, message string) *LogBuilder {
	return newBuilder(ctx, zapcore.ErrorLevel, message)
}
