package log

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const hubBacklog = 64

// Entry is a flattened log record delivered to Hub subscribers.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Hub is a zapcore.Core that fans entries out to subscribers. Slow
// subscribers lose entries rather than blocking the logger.
type Hub struct {
	minLevel zapcore.Level
	fields   []zapcore.Field
	state    *hubState
}

type hubState struct {
	mu   sync.Mutex
	subs map[chan Entry]struct{}
}

// NewHub returns a hub accepting entries at or above level.
func NewHub(level zapcore.Level) *Hub {
	return &Hub{
		minLevel: level,
		state:    &hubState{subs: make(map[chan Entry]struct{})},
	}
}

// Subscribe registers a new listener. Call the returned cancel func to
// unsubscribe; the channel is closed afterwards.
func (h *Hub) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, hubBacklog)
	h.state.mu.Lock()
	h.state.subs[ch] = struct{}{}
	h.state.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.state.mu.Lock()
			delete(h.state.subs, ch)
			h.state.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of active listeners.
func (h *Hub) Subscribers() int {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return len(h.state.subs)
}

func (h *Hub) Enabled(level zapcore.Level) bool {
	return level >= h.minLevel
}

func (h *Hub) With(fields []zapcore.Field) zapcore.Core {
	base := make([]zapcore.Field, 0, len(h.fields)+len(fields))
	base = append(base, h.fields...)
	base = append(base, fields...)
	return &Hub{minLevel: h.minLevel, fields: base, state: h.state}
}

func (h *Hub) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if h.Enabled(ent.Level) {
		return ce.AddCore(ent, h)
	}
	return ce
}

func (h *Hub) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range h.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}
	entry := Entry{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Message: ent.Message,
	}
	if len(enc.Fields) > 0 {
		entry.Fields = enc.Fields
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	for ch := range h.state.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	return nil
}

func (h *Hub) Sync() error { return nil }
