package mobile

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/relativeprotocol/peerbridge/log"
)

// LogSink receives formatted bridge log lines in the host application.
type LogSink interface {
	Log(level string, message string)
}

var logging struct {
	mu    sync.Mutex
	sink  LogSink
	level zapcore.Level
	hub   *log.Hub
}

// SetLogSink forwards every entry at or above level to sink. A nil sink
// reverts to the stderr logger at the configured level.
func SetLogSink(sink LogSink, level string) error {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	logging.mu.Lock()
	defer logging.mu.Unlock()
	logging.sink = sink
	logging.level = lvl
	return installLoggerLocked()
}

func setLogLevel(level string) error {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	logging.mu.Lock()
	defer logging.mu.Unlock()
	logging.level = lvl
	return installLoggerLocked()
}

// setLogHub tees entries into hub for the diagnostics stream. nil detaches.
func setLogHub(hub *log.Hub) error {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	logging.hub = hub
	return installLoggerLocked()
}

func installLoggerLocked() error {
	var extra []zapcore.Core
	if logging.hub != nil {
		extra = append(extra, logging.hub)
	}
	if logging.sink == nil {
		logger, err := log.New(logging.level.String(), extra...)
		if err != nil {
			return err
		}
		log.SetLogger(logger)
		return nil
	}

	cores := append([]zapcore.Core{&sinkCore{
		sink:     logging.sink,
		minLevel: logging.level,
	}}, extra...)
	log.SetLogger(zap.New(zapcore.NewTee(cores...), zap.AddCaller()))
	return nil
}

type sinkCore struct {
	sink     LogSink
	minLevel zapcore.Level
	fields   []zapcore.Field
}

func (c *sinkCore) Enabled(level zapcore.Level) bool {
	return level >= c.minLevel
}

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	base := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	base = append(base, c.fields...)
	base = append(base, fields...)
	return &sinkCore{sink: c.sink, minLevel: c.minLevel, fields: base}
}

func (c *sinkCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sinkCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	line := strings.TrimSpace(ent.Message)
	if line == "" {
		line = ent.Level.String()
	}
	if len(enc.Fields) > 0 {
		line += " " + formatFields(enc.Fields)
	}
	c.sink.Log(ent.Level.String(), line)
	return nil
}

func (c *sinkCore) Sync() error { return nil }

// formatFields renders fields as "[k=v k=v]" with sorted keys.
func formatFields(values map[string]any) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('[')
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		if s, ok := values[key].(string); ok {
			sb.WriteString(s)
		} else {
			fmt.Fprint(&sb, values[key])
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
