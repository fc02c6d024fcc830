// Package sqlbus broadcasts samples through an append-only SQL table. Every
// subscription keeps its own cursor over the row id, so all readers of a
// topic see every row written after they subscribed, whichever process
// they live in.
package sqlbus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/connector/internal/runtime/jsoncodec"
)

const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultBatchSize    = 100
)

// ErrClosed is returned once the bus has been closed.
var ErrClosed = errors.New("sqlbus: closed")

// Dialect holds the statements of one database flavour. Insert takes
// (uuid, topic, payload, metadata, created_at); Head returns the highest
// row id; Fetch takes (topic, after id, limit); Prune takes a created_at
// cut-off in unix nanoseconds.
type Dialect struct {
	Name   string
	Schema []string
	Insert string
	Head   string
	Fetch  string
	Prune  string
}

// Options tune polling and retention.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	// Retention removes rows older than this when the bus opens. Zero keeps
	// everything.
	Retention time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Bus is both publisher and subscriber of one participant.
type Bus struct {
	db      *sql.DB
	dialect Dialect
	opts    Options
	logger  watermill.LoggerAdapter

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// New prepares the schema on db and takes ownership of it.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts Options, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	b := &Bus{
		db:      db,
		dialect: dialect,
		opts:    opts.withDefaults(),
		logger:  logger.With(watermill.LogFields{"transport": dialect.Name}),
		closing: make(chan struct{}),
	}
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: prepare schema: %w", dialect.Name, err)
		}
	}
	if b.opts.Retention > 0 {
		n, err := b.Prune(ctx, time.Now().Add(-b.opts.Retention))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			b.logger.Info("Pruned expired samples", watermill.LogFields{"rows": n})
		}
	}
	return b, nil
}

// Publish appends one row per message in a single transaction.
func (b *Bus) Publish(topic string, messages ...*message.Message) error {
	if b.isClosed() {
		return ErrClosed
	}

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("%s: begin: %w", b.dialect.Name, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			b.logger.Error("Failed to roll back", err, nil)
		}
	}()

	now := time.Now().UnixNano()
	for _, msg := range messages {
		meta, err := jsoncodec.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("%s: encode metadata: %w", b.dialect.Name, err)
		}
		if _, err := tx.Exec(b.dialect.Insert, msg.UUID, topic, msg.Payload, string(meta), now); err != nil {
			return fmt.Errorf("%s: insert: %w", b.dialect.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", b.dialect.Name, err)
	}
	return nil
}

// Subscribe delivers rows of topic appended after the call returns.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	var head sql.NullInt64
	if err := b.db.QueryRowContext(ctx, b.dialect.Head).Scan(&head); err != nil {
		return nil, fmt.Errorf("%s: read head: %w", b.dialect.Name, err)
	}

	out := make(chan *message.Message)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(out)
		b.poll(ctx, topic, head.Int64, out)
	}()
	return out, nil
}

type row struct {
	id       int64
	uuid     string
	payload  []byte
	metadata string
}

func (b *Bus) poll(ctx context.Context, topic string, cursor int64, out chan<- *message.Message) {
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		rows, err := b.fetch(ctx, topic, cursor)
		if err != nil && ctx.Err() == nil && !b.isClosed() {
			b.logger.Error("Failed to fetch samples", err, watermill.LogFields{"topic": topic})
		}
		for _, r := range rows {
			if !b.deliver(ctx, r, out) {
				return
			}
			cursor = r.id
		}
		if len(rows) == b.opts.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-b.closing:
			return
		case <-ticker.C:
		}
	}
}

// fetch reads a batch up front so the connection is free while messages
// wait for their ack.
func (b *Bus) fetch(ctx context.Context, topic string, after int64) ([]row, error) {
	rs, err := b.db.QueryContext(ctx, b.dialect.Fetch, topic, after, b.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var batch []row
	for rs.Next() {
		var r row
		if err := rs.Scan(&r.id, &r.uuid, &r.payload, &r.metadata); err != nil {
			return batch, err
		}
		batch = append(batch, r)
	}
	return batch, rs.Err()
}

func (b *Bus) deliver(ctx context.Context, r row, out chan<- *message.Message) bool {
	msg := message.NewMessage(r.uuid, r.payload)
	if r.metadata != "" {
		if err := jsoncodec.Unmarshal([]byte(r.metadata), &msg.Metadata); err != nil {
			b.logger.Error("Dropping metadata of malformed row", err, watermill.LogFields{"id": r.id})
			msg.Metadata = message.Metadata{}
		}
	}

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	case <-b.closing:
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		b.logger.Debug("Sample nacked", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
		return false
	case <-b.closing:
		return false
	}
	return true
}

// Prune deletes rows created before cutoff and reports how many went.
func (b *Bus) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx, b.dialect.Prune, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%s: prune: %w", b.dialect.Name, err)
	}
	return res.RowsAffected()
}

// DB exposes the underlying connection pool.
func (b *Bus) DB() *sql.DB {
	return b.db
}

func (b *Bus) isClosed() bool {
	select {
	case <-b.closing:
		return true
	default:
		return false
	}
}

// Close stops every subscription and closes the database. Publisher and
// subscriber share the bus, so only the first call does any work.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closing)
		b.wg.Wait()
		err = b.db.Close()
	})
	return err
}
