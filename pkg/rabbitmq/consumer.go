package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultPrefetch = 10

type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
	closed chan *amqp.Error
}

func NewConsumer(amqpURL string, logger *zap.Logger) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(defaultPrefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:   conn,
		ch:     ch,
		logger: logger.With(zap.String("component", "rabbitmq_consumer")),
		closed: conn.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

// Closed is signalled when the broker connection goes away.
func (c *Consumer) Closed() <-chan *amqp.Error {
	return c.closed
}

// ConsumeWithBindings binds queueName to each routing key on exchange and
// dispatches deliveries to the matching handler. A handler returning false
// re-queues the delivery.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	handlers := make(map[string]func([]byte) bool)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			c.dispatch(handlers, d)
		}
	}()

	return nil
}

// dispatch acks on success and re-queues on failure. A delivery with no handler, or
// one whose handler panics, is acked and dropped.
func (c *Consumer) dispatch(handlers map[string]func([]byte) bool, d amqp.Delivery) {
	logger := c.logger.With(zap.String("routing_key", d.RoutingKey), zap.Bool("redelivered", d.Redelivered))
	handler, ok := handlers[d.RoutingKey]
	if !ok {
		logger.Warn("no handler for routing key; dropping")
		d.Ack(false)
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("handler panicked; dropping", zap.Any("panic", recovered))
			d.Ack(false)
		}
	}()

	if handler(d.Body) {
		d.Ack(false)
		return
	}
	logger.Warn("handler failed; re-queuing")
	d.Nack(false, true)
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
