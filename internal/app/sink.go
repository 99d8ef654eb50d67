package app

import (
	"log/slog"

	"github.com/aymanshehab/imgfetch/internal/entity"
	"github.com/aymanshehab/imgfetch/internal/storage/logbuf"
)

// eventSink keeps run log lines in the ring buffer for the logs
// endpoint and mirrors them to the structured logger.
type eventSink struct {
	buf *logbuf.Buffer
	log *slog.Logger
}

func newEventSink(buf *logbuf.Buffer, log *slog.Logger) *eventSink {
	return &eventSink{
		buf: buf,
		log: log.With(slog.String("service", "run")),
	}
}

func (s *eventSink) Emit(event entity.LogEvent) {
	s.buf.Emit(event)

	switch event.Level {
	case entity.EventError:
		s.log.Error(event.Message)
	case entity.EventWarning:
		s.log.Warn(event.Message)
	default:
		s.log.Info(event.Message)
	}
}
