package storage

import (
	"errors"

	"github.com/busfleet/livetrack/cli/tracker/storage/store/nats"
	"github.com/busfleet/livetrack/cli/tracker/storage/store/postgresql"
	"github.com/busfleet/livetrack/cli/tracker/storage/store/rabbitmq"
	"github.com/busfleet/livetrack/cli/tracker/storage/store/redis"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidStorage = errors.New("storage not found")
var ErrUnknownStorage = errors.New("storage isn't supported yet")

// Snapshot is what the repository receives: one bus's applied live state,
// addressable by the tracked entity id.
type Snapshot interface {
	// Key is the tracked entity id the snapshot belongs to.
	Key() string
	// ToBytes serializes the snapshot for the wire/archive.
	ToBytes() ([]byte, error)
	// Active reports whether the snapshot carries a running trip.
	Active() bool
}

// Saver is the interface external sinks implement. The parameter is an
// anonymous interface so sink packages need no import of this one.
type Saver interface {
	// Save writes one snapshot to the sink.
	Save(interface {
		Key() string
		ToBytes() ([]byte, error)
	}) error
}

// Connector manages a sink's connection lifecycle.
type Connector interface {
	// Init opens the connection using the sink's config section.
	Init(map[string]string) error

	// Close shuts the connection down.
	Close() error
}

type Store interface {
	Connector
	Saver
}

// Repository fans every applied snapshot out to the configured sinks.
type Repository struct {
	storages []Saver
	// SkipIdle drops snapshots without an active trip instead of fanning
	// them out; parked buses produce no archive noise.
	SkipIdle bool
}

func NewRepository(skipIdle bool) *Repository {
	return &Repository{SkipIdle: skipIdle}
}

// AddStore registers one sink.
func (r *Repository) AddStore(s Saver) {
	r.storages = append(r.storages, s)
}

// Save fans one snapshot out to every sink. The first sink error stops the
// fan-out and is returned.
func (r *Repository) Save(m Snapshot) error {
	if r.SkipIdle && !m.Active() {
		log.WithField("bus", m.Key()).Debug("Skipping idle snapshot")
		return nil
	}

	for _, store := range r.storages {
		if err := store.Save(m); err != nil {
			return err
		}
	}
	return nil
}

// LoadStorages builds sinks from the config's storage section.
func (r *Repository) LoadStorages(storages map[string]map[string]string) error {
	if len(storages) == 0 {
		return ErrInvalidStorage
	}

	var db Store
	for store, params := range storages {
		switch store {
		case "nats":
			db = &nats.Connector{}
		case "redis":
			db = &redis.Connector{}
		case "rabbitmq":
			db = &rabbitmq.Connector{}
		case "postgresql":
			db = &postgresql.Connector{}
		default:
			return ErrUnknownStorage
		}

		if err := db.Init(params); err != nil {
			return err
		}

		r.AddStore(db)
	}
	return nil
}

// Close shuts down every sink that manages a connection.
func (r *Repository) Close() error {
	var last error
	for _, store := range r.storages {
		if c, ok := store.(Connector); ok {
			if err := c.Close(); err != nil {
				log.WithField("err", err).Error("Failed to close storage")
				last = err
			}
		}
	}
	return last
}
