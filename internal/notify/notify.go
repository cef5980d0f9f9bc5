// Package notify carries the transient notifications ("toasts") raised by
// the ride views. Nothing here blocks or fails.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Error   Level = "error"
)

type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(level Level, msg string)
}

// Func adapts a plain function to Notifier.
type Func func(level Level, msg string)

func (f Func) Notify(level Level, msg string) { f(level, msg) }

// Log writes notifications to a structured logger.
type Log struct{ Logger *slog.Logger }

func (l Log) Notify(level Level, msg string) {
	switch level {
	case Error:
		l.Logger.Warn("notification", "level", string(level), "message", msg)
	default:
		l.Logger.Info("notification", "level", string(level), "message", msg)
	}
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Notify(level Level, msg string) {
	for _, n := range m {
		if n != nil {
			n.Notify(level, msg)
		}
	}
}

// Recorder keeps the most recent notifications in memory. The view server
// shows the last one; tests inspect all of them.
type Recorder struct {
	mu    sync.Mutex
	max   int
	items []Notification
}

func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 32
	}
	return &Recorder{max: max}
}

func (r *Recorder) Notify(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Level: level, Message: msg, At: time.Now()})
	if len(r.items) > r.max {
		r.items = r.items[len(r.items)-r.max:]
	}
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Count returns how many recorded notifications have the given level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Level == level {
			n++
		}
	}
	return n
}
