package postgresql

/*
Sink appending snapshots to a PostgreSQL table, as the trip history archive.

Config section:

storage:
  postgresql:
    host: "localhost"
    port: "5432"
    user: "postgres"
    password: "postgres"
    database: "fleet"
    table: "bus_status_log"
    sslmode: "disable"
*/

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

type Connector struct {
	connection *sql.DB
	table      string
	config     map[string]string
}

func getOptionValue(optionName string, optionDefaultValue string, settings map[string]string) string {
	optionValue := settings[optionName]
	if optionValue == "" {
		log.Warnf("Key '%s' not found in the storage config. Using default value '%s'.", optionName, optionDefaultValue)
		optionValue = optionDefaultValue
	}

	return optionValue
}

func (c *Connector) Init(cfg map[string]string) error {
	if cfg == nil {
		return fmt.Errorf("invalid storage config reference")
	}

	c.config = cfg
	c.table = getOptionValue("table", "bus_status_log", cfg)

	connStr := fmt.Sprintf("dbname=%s host=%s port=%s user=%s password=%s sslmode=%s",
		getOptionValue("database", "fleet", cfg),
		getOptionValue("host", "localhost", cfg),
		getOptionValue("port", "5432", cfg),
		getOptionValue("user", "postgres", cfg),
		getOptionValue("password", "postgres", cfg),
		getOptionValue("sslmode", "disable", cfg),
	)

	var err error
	if c.connection, err = sql.Open("postgres", connStr); err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}
	if err = c.connection.Ping(); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %v", err)
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

	query := fmt.Sprintf("INSERT INTO %s (bus_id, received_at, payload) VALUES ($1, $2, $3)", c.table)
	if _, err := c.connection.Exec(query, msg.Key(), time.Now().UTC(), body); err != nil {
		return fmt.Errorf("failed to insert snapshot: %v", err)
	}
	return nil
}

func (c *Connector) Close() error {
	if c.connection == nil {
		return nil
	}
	return c.connection.Close()
}
