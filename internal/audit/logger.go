package audit

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/taskmcp/mcp-task-server/internal/secrets"
)

// Config controls which categories are emitted and how sensitive values in
// event metadata are handled before the event reaches the sink.
type Config struct {
	Enabled      bool
	Categories   map[Category]bool
	MaxValueLen  int
	// Strategy is "redact" (default) or "drop": "redact" passes metadata
	// values through the scrubber; "drop" removes any value the scrubber
	// would have touched entirely.
	Strategy string
	LogPath  string
}

// Logger emits audit events as JSON lines to a rotating file. Metadata values
// are always scanned by the scrubber before a line is written — sanitization
// is global, never opt-in per event, since audit metadata is the one place
// client-controlled strings are guaranteed to reach a persisted log.
type Logger struct {
	cfg      Config
	scrubber secrets.Scrubber
	zap      *zap.Logger
	mu       sync.Mutex
}

// NewLogger builds an audit Logger writing to cfg.LogPath with daily
// rotation, gzip compression, and 30-day retention.
func NewLogger(cfg Config) (*Logger, error) {
	scrubber, err := secrets.New(nil)
	if err != nil {
		return nil, err
	}

	sink := &lumberjack.Logger{
		Filename:  cfg.LogPath,
		MaxAge:    30,
		Compress:  true,
		LocalTime: true,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(sink), zapcore.InfoLevel)

	return &Logger{
		cfg:      cfg,
		scrubber: scrubber,
		zap:      zap.New(core),
	}, nil
}

// Close flushes the underlying sink.
func (l *Logger) Close() error {
	return l.zap.Sync()
}

// Emit writes ev if its category is enabled, sanitizing metadata first.
// Events with a disabled category are dropped silently — the caller never
// needs to check Config before constructing one.
func (l *Logger) Emit(ev Event) {
	if !l.cfg.Enabled || !l.categoryEnabled(ev.Category) {
		return
	}

	ev.Metadata = l.sanitize(ev.Metadata)
	ev.ErrorMessage = l.sanitizeString(ev.ErrorMessage)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.zap.Info("audit",
		zap.String("eventType", string(ev.EventType)),
		zap.String("category", string(ev.Category)),
		zap.String("description", ev.Description),
		zap.Time("eventTimestamp", ev.Timestamp),
		zap.String("correlationId", ev.CorrelationID),
		zap.String("toolName", ev.ToolName),
		zap.Any("metadata", ev.Metadata),
		zap.Bool("success", ev.Success),
		zap.String("errorMessage", ev.ErrorMessage),
	)
}

func (l *Logger) categoryEnabled(c Category) bool {
	if len(l.cfg.Categories) == 0 {
		return true
	}
	return l.cfg.Categories[c]
}

func (l *Logger) sanitize(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = l.sanitizeString(v)
	}
	return out
}

func (l *Logger) sanitizeString(v string) string {
	if v == "" {
		return v
	}
	if l.cfg.MaxValueLen > 0 && len(v) > l.cfg.MaxValueLen {
		v = v[:l.cfg.MaxValueLen] + "...(truncated)"
	}
	result := l.scrubber.Check(v)
	if result.TotalFindings == 0 {
		return v
	}
	if l.cfg.Strategy == "drop" {
		return "[DROPPED]"
	}
	return l.scrubber.Scrub(v).Scrubbed
}

// CategoriesFromNames converts config-file category names into the set
// Logger expects. Unknown names are ignored rather than rejected, so adding
// a new category to config never breaks an older binary.
func CategoriesFromNames(names []string) map[Category]bool {
	out := make(map[Category]bool, len(names))
	for _, n := range names {
		out[Category(n)] = true
	}
	return out
}
