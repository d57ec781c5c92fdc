package events

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/cloudevents/sdk-go/protocol/kafka_sarama/v2"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// KafkaWriter ships events to a kafka topic through the cloudevents
// sarama binding.
type KafkaWriter struct {
	sender *kafka_sarama.Sender
	client cloudevents.Client
}

func NewKafkaWriter(brokers []string, topic string) (*KafkaWriter, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_0_0_0
	saramaConfig.Producer.Return.Successes = true

	sender, err := kafka_sarama.NewSender(brokers, saramaConfig, topic)
	if err != nil {
		return nil, err
	}

	client, err := cloudevents.NewClient(sender, cloudevents.WithTimeNow(), cloudevents.WithUUIDs())
	if err != nil {
		return nil, err
	}

	return &KafkaWriter{sender: sender, client: client}, nil
}

func (k *KafkaWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	if result := k.client.Send(
		kafka_sarama.WithMessageKey(ctx, sarama.StringEncoder(e.ID())),
		e,
	); cloudevents.IsUndelivered(result) {
		return result
	}
	return nil
}

func (k *KafkaWriter) Close(ctx context.Context) error {
	return k.sender.Close(ctx)
}
