package redis

/*
Sink keeping the latest snapshot per bus in Redis, so other consumers can
read the current fleet state with one GET.

Config section:

storage:
  redis:
    host: "localhost"
    port: "6379"
    password: ""
    db: "0"
    key_prefix: "fleet:bus:"
    ttl_seconds: "300"
*/

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Connector struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	config    map[string]string
}

func (c *Connector) Init(cfg map[string]string) error {
	if cfg == nil {
		return fmt.Errorf("invalid storage config reference")
	}

	c.config = cfg
	c.keyPrefix = cfg["key_prefix"]
	if c.keyPrefix == "" {
		c.keyPrefix = "fleet:bus:"
	}

	if raw := cfg["ttl_seconds"]; raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("failed to parse ttl_seconds: %v", err)
		}
		c.ttl = time.Duration(seconds) * time.Second
	}

	db := 0
	if raw := cfg["db"]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("failed to parse db: %v", err)
		}
		db = parsed
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg["host"], cfg["port"]),
		Password: cfg["password"],
		DB:       db,
	})

	if err := c.client.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
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

	key := c.keyPrefix + msg.Key()
	if err := c.client.Set(context.Background(), key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %v", key, err)
	}
	return nil
}

func (c *Connector) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
