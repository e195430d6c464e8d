// Package notify reports outcomes to the user. Only the shell around the
// core calls it; core packages return errors instead.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Sink shows one message.
type Sink interface {
	Notify(message string, sev Severity)
}

// LogSink writes notifications as log events.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Notify(message string, sev Severity) {
	var ev *zerolog.Event
	switch sev {
	case Warning:
		ev = s.Logger.Warn()
	case Error:
		ev = s.Logger.Error()
	default:
		ev = s.Logger.Info()
	}
	ev.Str("severity", sev.String()).Msg(message)
}

// ConsoleSink prints notifications for a person at a terminal.
type ConsoleSink struct {
	mu  sync.Mutex
	Out io.Writer
}

var consolePrefix = map[Severity]string{
	Info:    "i",
	Success: "ok",
	Warning: "!",
	Error:   "x",
}

func (s *ConsoleSink) Notify(message string, sev Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.Out, "[%s] %s\n", consolePrefix[sev], message)
}

// Multi fans a notification out to several sinks.
type Multi []Sink

func (m Multi) Notify(message string, sev Severity) {
	for _, s := range m {
		s.Notify(message, sev)
	}
}

// Message is one recorded notification.
type Message struct {
	Text     string
	Severity Severity
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(message string, sev Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: message, Severity: sev})
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
