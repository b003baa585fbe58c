package telemetry

import (
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = newLogger(zapcore.InfoLevel, "json")
)

// stdoutSyncer resolves os.Stdout on every write so redirected output is honoured.
type stdoutSyncer struct{}

func (stdoutSyncer) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdoutSyncer) Sync() error                 { return nil }

func newLogger(level zapcore.Level, format string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.LevelKey = "level"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey

	var encoder zapcore.Encoder
	if format == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(encoder, stdoutSyncer{}, level))
}

// Init replaces the process logger. Unknown levels fall back to info.
func Init(level, format string) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	l := newLogger(lvl, strings.ToLower(strings.TrimSpace(format)))

	mu.Lock()
	logger = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
}

// L returns the process logger for callers that want typed zap fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	L().Info(msg, toZap(fields)...)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	L().Warn(msg, toZap(fields)...)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	L().Error(msg, toZap(fields)...)
}

func toZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.String(k, v.Error()))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
