// Package domain contains core concepts of the chat system.
// Messages are immutable and carry their formatting rules, so every
// consumer (broadcast, transcript, viewer) renders them identically.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QuitCommand is the client line that closes a session. It is never
// broadcast as content.
const QuitCommand = "/quit"

// TimeLayout is the stable timestamp format of transcript lines.
const TimeLayout = "2006-01-02 15:04:05"

// Message represents an immutable chat event.
type Message struct {
	ID        uuid.UUID // unique identifier
	Sender    string    // display name; empty for server notices
	Content   string
	CreatedAt time.Time
}

func NewMessage(sender, content string, at time.Time) Message {
	return Message{
		ID:        uuid.New(),
		Sender:    sender,
		Content:   content,
		CreatedAt: at,
	}
}

// Notice builds a server announcement (join/leave) that carries no sender.
func Notice(content string, at time.Time) Message {
	return Message{
		ID:        uuid.New(),
		Content:   content,
		CreatedAt: at,
	}
}

// WireLine is the representation sent to connected peers.
func (m Message) WireLine() string {
	if m.Sender == "" {
		return m.Content
	}
	return m.Sender + ": " + m.Content
}

// TranscriptLine is the representation appended to the transcript:
// the wire line prefixed with a bracketed timestamp.
func (m Message) TranscriptLine() string {
	return fmt.Sprintf("[%s] %s", m.CreatedAt.Format(TimeLayout), m.WireLine())
}

// ParseTranscriptLine splits a transcript line back into its timestamp
// and wire text. Used by the viewer; lines that do not carry the
// bracketed prefix are returned whole with a zero time.
func ParseTranscriptLine(line string) (time.Time, string) {
	if !strings.HasPrefix(line, "[") {
		return time.Time{}, line
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return time.Time{}, line
	}
	at, err := time.Parse(TimeLayout, line[1:end])
	if err != nil {
		return time.Time{}, line
	}
	return at, line[end+2:]
}
