package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/filmstore/internal/service/outbox"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, clientID string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, clientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, falling back to log publisher")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers выбирает, куда worker отправляет события и dead letters.
// Без producer события пишутся в лог, а DLQ не используется.
func outboxPublishers(producer *kafka.Producer, cfg Config, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return outbox.NewLogPublisher(logger.WithField("publisher", "log")), nil
	}
	return kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
