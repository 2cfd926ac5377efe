// Package event defines the structured records written to the
// application's event sinks. Timestamps are supplied by the caller so
// that the source of time (local or SNTP-synchronized) stays a
// collaborator concern.
package event

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event is one structured log record.
type Event struct {
	ID       uuid.UUID
	Module   string
	Severity Severity
	Message  string
	At       time.Time
}

func New(module string, severity Severity, message string, at time.Time) Event {
	return Event{
		ID:       uuid.New(),
		Module:   module,
		Severity: severity,
		Message:  message,
		At:       at,
	}
}
