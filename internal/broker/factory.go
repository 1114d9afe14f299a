package broker

import (
	"pricewatch/internal/config"
	"pricewatch/internal/logger"
)

// NewProducer returns a Kafka producer, or a no-op producer when no brokers
// are configured so the ingest path runs without Kafka.
func NewProducer(cfg config.KafkaConfig, serviceName string, log logger.Logger) Producer {
	if len(cfg.Brokers) == 0 {
		log.Warnw("No Kafka brokers configured, outbound events are discarded")
		return NopProducer{}
	}
	return NewKafkaProducer(cfg, serviceName, log)
}

func NewConsumer(cfg config.KafkaConfig, serviceName string, log logger.Logger) Consumer {
	c := NewKafkaConsumer(cfg, log)
	c.SetServiceName(serviceName)
	return c
}
