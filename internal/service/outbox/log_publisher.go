package outbox

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// LogPublisher пишет события в лог. Используется, когда Kafka не настроена:
// outbox всё равно вычищается и события видны в логах.
type LogPublisher struct {
	logger *log.Entry
}

// NewLogPublisher создаёт паблишер в лог.
func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":      event.ID,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"event_type":     event.EventType,
		"payload":        string(event.Payload),
	}).Info("outbox event")
	return nil
}

var _ domain.OutboxPublisher = (*LogPublisher)(nil)
