package nats

/*
Sink publishing every applied snapshot to NATS, one subject per bus.

Config section:

storage:
  nats:
    host: "localhost"
    port: "4222"
    subject_prefix: "fleet"
*/

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Connector struct {
	connection    *nats.Conn
	subjectPrefix string
	config        map[string]string
}

func (c *Connector) Init(cfg map[string]string) error {
	if cfg == nil {
		return fmt.Errorf("invalid storage config reference")
	}

	c.config = cfg
	c.subjectPrefix = cfg["subject_prefix"]
	if c.subjectPrefix == "" {
		c.subjectPrefix = "fleet"
	}

	url := fmt.Sprintf("nats://%s:%s", cfg["host"], cfg["port"])

	var err error
	c.connection, err = nats.Connect(url,
		nats.Name("livetrack"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithField("err", err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %v", err)
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

	subject := c.subjectPrefix + "." + subjectToken(msg.Key())
	if err := c.connection.Publish(subject, body); err != nil {
		return fmt.Errorf("failed to publish to %s: %v", subject, err)
	}
	return nil
}

func (c *Connector) Close() error {
	if c.connection == nil {
		return nil
	}
	c.connection.Drain()
	c.connection.Close()
	return nil
}

// subjectToken makes an entity id safe as a NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
