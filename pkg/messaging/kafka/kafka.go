package kafka

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

const (
	pollTimeout  = 500 * time.Millisecond
	flushTimeout = 5000
)

type Kafka struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	closed   atomic.Bool
}

// NewKafka connects a producer and a consumer. groupID names the consumer
// group used by Subscribe.
func NewKafka(brokers []string, groupID string) (*Kafka, error) {
	servers := strings.Join(brokers, ",")
	producer, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": servers})
	if err != nil {
		return nil, err
	}
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": servers,
		"group.id":          groupID,
		"auto.offset.reset": "latest",
	})
	if err != nil {
		producer.Close()
		return nil, err
	}
	k := &Kafka{producer: producer, consumer: consumer}
	go k.drainDeliveries()
	return k, nil
}

// drainDeliveries consumes delivery reports so the producer never blocks.
func (k *Kafka) drainDeliveries() {
	for range k.producer.Events() {
	}
}

func (k *Kafka) Publish(topic string, message []byte) error {
	if k.closed.Load() {
		return errors.New("kafka: broker closed")
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
	}
	return k.producer.Produce(msg, nil)
}

func (k *Kafka) Subscribe(topic string, handler func(message []byte)) error {
	if err := k.consumer.Subscribe(topic, nil); err != nil {
		return err
	}

	for !k.closed.Load() {
		msg, err := k.consumer.ReadMessage(pollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			if k.closed.Load() {
				return nil
			}
			return err
		}
		handler(msg.Value)
	}
	return nil
}

func (k *Kafka) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	k.producer.Flush(flushTimeout)
	k.producer.Close()
	return k.consumer.Close()
}
