package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 敏感信息类型
const (
	APIKey = "api_key"
	Secret = "secret"
	Token  = "token"
)

// MaskSensitiveInfo keeps the first and last four characters of long values.
func MaskSensitiveInfo(info string, infoType string) string {
	if info == "" {
		return ""
	}

	switch infoType {
	case APIKey, Secret, Token:
		if len(info) <= 8 {
			return "****"
		}
		return info[:4] + strings.Repeat("*", len(info)-8) + info[len(info)-4:]
	default:
		return info
	}
}

// NewMaskedLogger wraps the core so that sensitive string fields are masked
// before they reach the encoder.
func NewMaskedLogger(baseLogger *zap.Logger) *zap.Logger {
	return baseLogger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &maskedCore{Core: core}
	}))
}

type maskedCore struct {
	zapcore.Core
}

func (c *maskedCore) With(fields []zapcore.Field) zapcore.Core {
	return &maskedCore{Core: c.Core.With(maskFields(fields))}
}

func (c *maskedCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *maskedCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, maskFields(fields))
}

func maskFields(fields []zapcore.Field) []zapcore.Field {
	for i, field := range fields {
		if field.Type != zapcore.StringType {
			continue
		}
		if kind := sensitiveKind(field.Key); kind != "" {
			fields[i] = zap.String(field.Key, MaskSensitiveInfo(field.String, kind))
		}
	}
	return fields
}

// sensitiveKind returns the masking category for a field key, or "".
func sensitiveKind(key string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "api_key"), strings.Contains(key, "apikey"):
		return APIKey
	case strings.Contains(key, "secret"), strings.Contains(key, "password"):
		return Secret
	case strings.Contains(key, "token"), strings.Contains(key, "auth"):
		return Token
	}
	return ""
}
