package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/connector/transport"
	"github.com/drblury/connector/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "sqlite", caps.Name)
	assert.True(t, caps.Durable)
	assert.True(t, caps.SupportsReliableDelivery())
	assert.Equal(t, transport.SQLiteCapabilities, Capabilities())
}

func build(t *testing.T, file string) transport.Transport {
	t.Helper()
	tr, err := Build(context.Background(), &transporttest.Config{SQLiteFile: file}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Subscriber.Close() })
	return tr
}

func receive(t *testing.T, msgs <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg, ok := <-msgs:
		require.True(t, ok, "subscription closed")
		msg.Ack()
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no sample delivered")
		return nil
	}
}

func TestEveryParticipantReceivesEverySample(t *testing.T) {
	file := filepath.Join(t.TempDir(), "samples.db")
	writer := build(t, file)
	readerA := build(t, file)
	readerB := build(t, file)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := readerA.Subscriber.Subscribe(ctx, "domain-0-Square")
	require.NoError(t, err)
	b, err := readerB.Subscriber.Subscribe(ctx, "domain-0-Square")
	require.NoError(t, err)

	msg := message.NewMessage("s-1", []byte(`{"x":1}`))
	msg.Metadata.Set("connector_writer", "MyPublisher::MySquareWriter")
	require.NoError(t, writer.Publisher.Publish("domain-0-Circle", message.NewMessage("other", []byte(`{}`))))
	require.NoError(t, writer.Publisher.Publish("domain-0-Square", msg))

	for _, got := range []*message.Message{receive(t, a), receive(t, b)} {
		assert.Equal(t, "s-1", got.UUID)
		assert.Equal(t, `{"x":1}`, string(got.Payload))
		assert.Equal(t, "MyPublisher::MySquareWriter", got.Metadata.Get("connector_writer"))
	}
}

func TestSubscribeSkipsEarlierRows(t *testing.T) {
	file := filepath.Join(t.TempDir(), "samples.db")
	tr := build(t, file)

	require.NoError(t, tr.Publisher.Publish("domain-0-Square", message.NewMessage("before", []byte(`{}`))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := tr.Subscriber.Subscribe(ctx, "domain-0-Square")
	require.NoError(t, err)

	require.NoError(t, tr.Publisher.Publish("domain-0-Square",
		message.NewMessage("after-1", []byte(`{}`)),
		message.NewMessage("after-2", []byte(`{}`)),
	))

	assert.Equal(t, "after-1", receive(t, msgs).UUID)
	assert.Equal(t, "after-2", receive(t, msgs).UUID)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	tr, err := Build(context.Background(), &transporttest.Config{SQLiteFile: filepath.Join(t.TempDir(), "samples.db")}, watermill.NopLogger{})
	require.NoError(t, err)

	msgs, err := tr.Subscriber.Subscribe(context.Background(), "domain-0-Square")
	require.NoError(t, err)

	require.NoError(t, tr.Subscriber.Close())
	require.NoError(t, tr.Publisher.Close())
	_, open := <-msgs
	assert.False(t, open)

	assert.Error(t, tr.Publisher.Publish("domain-0-Square", message.NewMessage("late", nil)))
	_, err = tr.Subscriber.Subscribe(context.Background(), "domain-0-Square")
	assert.Error(t, err)
}

func TestBuildDefaultsAndFailures(t *testing.T) {
	original := OpenDB
	defer func() { OpenDB = original }()

	var gotPath string
	OpenDB = func(path string) (*sql.DB, error) {
		gotPath = path
		return nil, errors.New("boom")
	}
	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, DefaultFilePath, gotPath)
}
