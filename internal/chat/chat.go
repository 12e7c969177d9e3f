// Package chat holds the client's view of the room's text chat.
package chat

import (
	"sync"
	"time"
)

// Message is one line of chat as delivered by the relay.
type Message struct {
	Text      string
	Sender    string
	Timestamp time.Time
}

// Log is an append-only list of messages in arrival order. It is safe for
// concurrent use.
type Log struct {
	mu       sync.Mutex
	messages []Message
	limit    int
}

// NewLog returns a log that keeps at most limit messages, dropping the
// oldest. A limit of zero keeps everything.
func NewLog(limit int) *Log {
	return &Log{limit: limit}
}

func (l *Log) Append(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, m)
	if l.limit > 0 && len(l.messages) > l.limit {
		l.messages = append([]Message(nil), l.messages[len(l.messages)-l.limit:]...)
	}
}

// Messages returns a copy of the log, oldest first.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.messages) == 0 {
		return nil
	}
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}
