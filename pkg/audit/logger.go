package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"heatnet/pkg/config"
	"heatnet/pkg/logger"
)

const (
	OutputLog  = "log"
	OutputFile = "file"
)

// New creates a logger for the audit section of the configuration.
// Disabled auditing yields a NoopLogger.
func New(cfg config.AuditConfig) (Logger, error) {
	if !cfg.Enabled {
		return NoopLogger{}, nil
	}

	switch cfg.Output {
	case OutputFile:
		return NewFileLogger(cfg.FilePath)
	case OutputLog, "":
		return NewSlogLogger(nil), nil
	default:
		return nil, fmt.Errorf("unknown audit output %q", cfg.Output)
	}
}

// SlogLogger пишет записи в структурированный лог приложения
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger создаёт логгер поверх l; nil = глобальный logger.Log
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{log: l}
}

func (l *SlogLogger) Log(ctx context.Context, e *Entry) error {
	log := l.log
	if log == nil {
		log = logger.Log
	}

	attrs := []slog.Attr{
		slog.String("id", e.ID),
		slog.String("method", e.Method),
		slog.String("action", string(e.Action)),
		slog.String("outcome", string(e.Outcome)),
		slog.Int64("duration_ms", e.DurationMs),
	}
	if e.Subject != "" {
		attrs = append(attrs, slog.String("subject", e.Subject), slog.String("role", e.Role))
	}
	if e.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip", e.ClientIP))
	}
	if e.ResourceID != "" {
		attrs = append(attrs, slog.String("resource", e.Resource), slog.String("resource_id", e.ResourceID))
	}
	if e.ErrorCode != "" {
		attrs = append(attrs, slog.String("error_code", e.ErrorCode), slog.String("error", e.ErrorMessage))
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}

	level := slog.LevelInfo
	if e.Outcome != OutcomeSuccess {
		level = slog.LevelWarn
	}
	log.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

func (l *SlogLogger) Close() error { return nil }

// FileLogger пишет записи в JSONL-файл с ротацией через lumberjack
type FileLogger struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

func NewFileLogger(path string) (*FileLogger, error) {
	if path == "" {
		return nil, fmt.Errorf("audit file path is empty")
	}
	return &FileLogger{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     90,
			Compress:   true,
		},
	}, nil
}

func (l *FileLogger) Log(_ context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.out.Write(append(data, '\n'))
	return err
}

func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// MemoryLogger хранит записи в памяти, используется в тестах
type MemoryLogger struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(_ context.Context, e *Entry) error {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return nil
}

// Query возвращает записи, подходящие под фильтр, в порядке записи
func (l *MemoryLogger) Query(f QueryFilter) []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Entry
	for _, e := range l.entries {
		if !f.match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (l *MemoryLogger) Close() error { return nil }

// NoopLogger discards every entry.
type NoopLogger struct{}

func (NoopLogger) Log(context.Context, *Entry) error { return nil }
func (NoopLogger) Close() error                      { return nil }
