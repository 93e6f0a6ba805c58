package rabbitmq

import (
	"github.com/streadway/amqp"
)

// RabbitMQ publishes to fanout exchanges named after the topic.
type RabbitMQ struct {
	conn *amqp.Connection
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &RabbitMQ{conn: conn}, nil
}

func declareExchange(ch *amqp.Channel, topic string) error {
	return ch.ExchangeDeclare(
		topic,    // name
		"fanout", // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
}

func (r *RabbitMQ) Publish(topic string, message []byte) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareExchange(ch, topic); err != nil {
		return err
	}

	return ch.Publish(topic, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        message,
	})
}

func (r *RabbitMQ) Subscribe(topic string, handler func(message []byte)) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareExchange(ch, topic); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	if err := ch.QueueBind(q.Name, "", topic, false, nil); err != nil {
		return err
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return err
	}

	for msg := range msgs {
		handler(msg.Body)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}
