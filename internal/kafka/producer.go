package kafka

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/IBM/sarama"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrEmptyTopic = errors.New("kafka topic is empty")

type ProducerResult struct {
	Partition int32
	Offset    int64
}

// Producer publishes report events to one topic.
type Producer struct {
	Client         sarama.SyncProducer
	Topic          string
	CircuitBreaker *gobreaker.CircuitBreaker[ProducerResult]
}

func NewProducer(settings Settings) (*Producer, error) {
	if !settings.Configured() {
		return nil, ErrNotConfigured
	}

	client, err := sarama.NewSyncProducer([]string{settings.BootstrapServer}, newSaramaConfig(settings))
	if err != nil {
		logging.Logger.Error("Failed to create Kafka producer",
			zap.String("bootstrap", settings.BootstrapServer),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to Kafka producer",
		zap.String("bootstrap", settings.BootstrapServer),
		zap.String("topic", settings.Topic),
	)

	return NewProducerWithClient(client, settings), nil
}

func NewProducerWithClient(client sarama.SyncProducer, settings Settings) *Producer {
	cbSettings := circuitbreak.NewSettings(
		"KafkaProducer",
		circuitbreak.KafkaProducerService,
		settings.IntervalCB,
		settings.ConsecutiveFailures,
	)

	return &Producer{
		Client:         client,
		Topic:          settings.Topic,
		CircuitBreaker: gobreaker.NewCircuitBreaker[ProducerResult](cbSettings),
	}
}

// Publish sends value keyed by key to the producer's topic.
func (producer *Producer) Publish(ctx context.Context, key string, value []byte) error {
	_, _, err := producer.SendMessage(ctx, producer.Topic, []byte(key), value)
	return err
}

func (producer *Producer) SendMessage(ctx context.Context, topic string, key, value []byte) (int32, int64, error) {
	if topic == "" {
		return 0, 0, ErrEmptyTopic
	}

	err := ctx.Err()
	if err != nil {
		return 0, 0, err
	}

	result, err := producer.CircuitBreaker.Execute(func() (ProducerResult, error) {
		return producer.doSendMessage(topic, key, value)
	})
	if err != nil {
		return 0, 0, err
	}

	return result.Partition, result.Offset, nil
}

func (producer *Producer) Close() error {
	err := producer.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close Kafka producer", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("Kafka producer closed successfully")

	return nil
}

func (producer *Producer) doSendMessage(topic string, key, value []byte) (ProducerResult, error) {
	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := producer.Client.SendMessage(message)
	if err != nil {
		logging.Logger.Error("Failed to send message to Kafka",
			zap.String("topic", topic),
			zap.String("error", err.Error()),
		)

		return ProducerResult{}, err
	}

	logging.Logger.Debug("Message sent successfully",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return ProducerResult{Partition: partition, Offset: offset}, nil
}
