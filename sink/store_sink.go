package sink

import (
	"log/slog"

	"netlab/domain/event"
	"netlab/repositories"
)

// StoreSink persists events through the Badger-backed repository so the
// viewer can inspect them after the fact.
type StoreSink struct {
	repository repositories.IEventRepository
	log        *slog.Logger
}

func NewStoreSink(repository repositories.IEventRepository, log *slog.Logger) StoreSink {
	return StoreSink{repository: repository, log: log}
}

func (s StoreSink) Record(e event.Event) error {
	return s.repository.Store(e)
}
