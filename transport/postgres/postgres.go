// Package postgres provides a PostgreSQL transport. Participants anywhere on
// the network share the samples table of one database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/lib/pq"

	"github.com/drblury/connector/transport"
	"github.com/drblury/connector/transport/internal/sqlbus"
)

// TransportName is the name used to register this transport.
const TransportName = "postgres"

// Options applies to every bus this package builds.
var Options = sqlbus.Options{}

// Dialect holds the PostgreSQL statements.
var Dialect = sqlbus.Dialect{
	Name: TransportName,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS connector_samples (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL,
			topic TEXT NOT NULL,
			payload BYTEA NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connector_samples_topic ON connector_samples(topic, id)`,
	},
	Insert: `INSERT INTO connector_samples (uuid, topic, payload, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
	Head:   `SELECT MAX(id) FROM connector_samples`,
	Fetch:  `SELECT id, uuid, payload, metadata FROM connector_samples WHERE topic = $1 AND id > $2 ORDER BY id LIMIT $3`,
	Prune:  `DELETE FROM connector_samples WHERE created_at < $1`,
}

// OpenDB allows overriding how the database is opened for testing.
var OpenDB = func(url string) (*sql.DB, error) {
	return sql.Open("postgres", url)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.PostgresCapabilities)
}

// Build connects to the domain's database.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetPostgresURL()
	if url == "" {
		return transport.Transport{}, errors.New("postgres: URL is required")
	}

	db, err := OpenDB(url)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return transport.Transport{}, fmt.Errorf("postgres: ping: %w", err)
	}
	bus, err := sqlbus.New(ctx, db, Dialect, Options, logger)
	if err != nil {
		_ = db.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  bus,
		Subscriber: bus,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.PostgresCapabilities
}
