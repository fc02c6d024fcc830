// Package sqlite provides a SQLite transport. Participants on one host share
// a database file; every reader sees every sample written after it opened.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/mattn/go-sqlite3"

	"github.com/drblury/connector/transport"
	"github.com/drblury/connector/transport/internal/sqlbus"
)

// TransportName is the name used to register this transport.
const TransportName = "sqlite"

// DefaultFilePath is used when the domain names no database file.
const DefaultFilePath = "connector_samples.db"

// Options applies to every bus this package builds.
var Options = sqlbus.Options{}

// Dialect holds the SQLite statements.
var Dialect = sqlbus.Dialect{
	Name: TransportName,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS connector_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL,
			topic TEXT NOT NULL,
			payload BLOB NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connector_samples_topic ON connector_samples(topic, id)`,
	},
	Insert: `INSERT INTO connector_samples (uuid, topic, payload, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
	Head:   `SELECT MAX(id) FROM connector_samples`,
	Fetch:  `SELECT id, uuid, payload, metadata FROM connector_samples WHERE topic = ? AND id > ? ORDER BY id LIMIT ?`,
	Prune:  `DELETE FROM connector_samples WHERE created_at < ?`,
}

// OpenDB allows overriding how the database is opened for testing.
var OpenDB = func(filePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", filePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SQLiteCapabilities)
}

// Build opens the domain's database file.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetSQLiteFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	db, err := OpenDB(filePath)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("sqlite: open %s: %w", filePath, err)
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
	return transport.SQLiteCapabilities
}
