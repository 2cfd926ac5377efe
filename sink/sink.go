// Package sink collects structured application events. Sinks are
// write-only from the core modules: nothing in the hot path ever reads
// an event back.
package sink

import (
	"log/slog"

	"netlab/domain/event"
)

type EventSink interface {
	Record(e event.Event) error
}

// Fanout records each event to several sinks. A failing sink is logged
// and skipped; event recording is best-effort and must never stall the
// caller.
type Fanout struct {
	sinks []EventSink
	log   *slog.Logger
}

func NewFanout(log *slog.Logger, sinks ...EventSink) Fanout {
	return Fanout{sinks: sinks, log: log}
}

func (f Fanout) Record(e event.Event) error {
	for _, s := range f.sinks {
		if err := s.Record(e); err != nil {
			f.log.Warn("event sink failed", "module", e.Module, "error", err)
		}
	}
	return nil
}

// Discard swallows every event. Used where a component requires a sink
// but the caller does not care about its events (tests, one-shot tools).
type Discard struct{}

func (Discard) Record(event.Event) error { return nil }
