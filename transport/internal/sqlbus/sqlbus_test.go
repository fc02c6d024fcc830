package sqlbus_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/connector/transport/internal/sqlbus"
	"github.com/drblury/connector/transport/sqlite"
)

func open(t *testing.T, opts sqlbus.Options) *sqlbus.Bus {
	t.Helper()
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "bus.db"))
	require.NoError(t, err)
	bus, err := sqlbus.New(context.Background(), db, sqlite.Dialect, opts, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestDeliversAcrossBatches(t *testing.T) {
	bus := open(t, sqlbus.Options{BatchSize: 2, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)

	var batch []*message.Message
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		batch = append(batch, message.NewMessage(id, []byte(id)))
	}
	require.NoError(t, bus.Publish("t", batch...))

	for _, want := range []string{"1", "2", "3", "4", "5"} {
		select {
		case msg := <-msgs:
			assert.Equal(t, want, msg.UUID)
			msg.Ack()
		case <-time.After(3 * time.Second):
			t.Fatalf("sample %s not delivered", want)
		}
	}
}

func TestNackedSampleIsNotRedelivered(t *testing.T) {
	bus := open(t, sqlbus.Options{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)

	require.NoError(t, bus.Publish("t", message.NewMessage("a", nil), message.NewMessage("b", nil)))

	first := <-msgs
	assert.Equal(t, "a", first.UUID)
	first.Nack()

	select {
	case msg := <-msgs:
		assert.Equal(t, "b", msg.UUID)
		msg.Ack()
	case <-time.After(3 * time.Second):
		t.Fatal("expected next sample")
	}
}

func TestPrune(t *testing.T) {
	bus := open(t, sqlbus.Options{})
	require.NoError(t, bus.Publish("t", message.NewMessage("old", nil)))

	n, err := bus.Prune(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = bus.Prune(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var count int
	require.NoError(t, bus.DB().QueryRow(`SELECT COUNT(*) FROM connector_samples`).Scan(&count))
	assert.Zero(t, count)
}

func TestRetentionPrunesOnOpen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bus.db")

	db, err := sqlite.OpenDB(file)
	require.NoError(t, err)
	first, err := sqlbus.New(context.Background(), db, sqlite.Dialect, sqlbus.Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Publish("t", message.NewMessage("stale", nil)))
	require.NoError(t, first.Close())

	time.Sleep(20 * time.Millisecond)

	db, err = sqlite.OpenDB(file)
	require.NoError(t, err)
	second, err := sqlbus.New(context.Background(), db, sqlite.Dialect, sqlbus.Options{Retention: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.DB().QueryRow(`SELECT COUNT(*) FROM connector_samples`).Scan(&count))
	assert.Zero(t, count)
}
