package rabbitmq

/*
Sink publishing snapshots to a RabbitMQ exchange, routing key per bus.

Config section:

storage:
  rabbitmq:
    host: "localhost"
    port: "5672"
    user: "guest"
    password: "guest"
    exchange: "fleet"
*/

import (
	"fmt"

	"github.com/streadway/amqp"
)

type Connector struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	config     map[string]string
}

func (c *Connector) Init(cfg map[string]string) error {
	if cfg == nil {
		return fmt.Errorf("invalid storage config reference")
	}

	c.config = cfg
	c.exchange = cfg["exchange"]
	if c.exchange == "" {
		c.exchange = "fleet"
	}

	url := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg["user"], cfg["password"], cfg["host"], cfg["port"])

	var err error
	c.connection, err = amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	c.channel, err = c.connection.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %v", err)
	}

	if err := c.channel.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %v", c.exchange, err)
	}
	return nil
}

func (c *Connector) Save(msg interface {
	Key() string
	ToBytes() ([]byte, error)
}) error {
	if msg == nil {
		return fmt.Errorf("invalid snapshot reference")
	}

	body, err := msg.ToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %v", err)
	}

	err = c.channel.Publish(c.exchange, msg.Key(), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish snapshot: %v", err)
	}
	return nil
}

func (c *Connector) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.connection == nil {
		return nil
	}
	return c.connection.Close()
}
