package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/connector/internal/runtime/errors"
	"github.com/drblury/connector/internal/runtime/jsoncodec"
	"github.com/drblury/connector/internal/runtime/metadata"
	"github.com/drblury/connector/transport"
	"github.com/drblury/connector/transport/channel"
)

const writerName = "Pub::SquareWriter"
const readerName = "Sub::SquareReader"

func inlineConfig(domainID int) string {
	return fmt.Sprintf(`str://
types:
  InnerType:
    members:
      - {name: z, type: int32}
  ShapeType:
    members:
      - {name: color, type: string, key: true, max_length: 128}
      - {name: x, type: int32}
      - {name: y, type: int32}
      - {name: angle, type: float32}
      - {name: hidden, type: bool}
      - {name: list, type: int32, sequence: true, max_length: 10}
      - {name: inner, type: InnerType}
  OtherType:
    members:
      - {name: color, type: int32}
domain_libraries:
  Lib:
    Domain:
      domain_id: %d
      transport:
        system: channel
      topics:
        Square:
          type: ShapeType
        Other:
          type: OtherType
participant_libraries:
  Parts:
    Both:
      domain: Lib::Domain
      publishers:
        Pub:
          writers:
            SquareWriter: {topic: Square}
      subscribers:
        Sub:
          readers:
            SquareReader: {topic: Square}
    Shallow:
      domain: Lib::Domain
      subscribers:
        Sub:
          readers:
            SquareReader: {topic: Square, history_depth: 2}
`, domainID)
}

func openParticipant(t *testing.T, domainID int, name string) *Participant {
	t.Helper()
	p, err := Open(context.Background(), name, inlineConfig(domainID), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, p.Close()) })
	return p
}

func handles(t *testing.T, p *Participant) (*Writer, *Reader) {
	t.Helper()
	w, err := p.Writer(writerName)
	require.NoError(t, err)
	r, err := p.Reader(readerName)
	require.NoError(t, err)
	return w, r
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), "Parts::Missing", inlineConfig(40), Options{})
	assert.ErrorIs(t, err, errspkg.ErrEntityNotFound)

	_, err = Open(context.Background(), "Parts::Both", "/does/not/exist.yaml", Options{})
	assert.ErrorIs(t, err, errspkg.ErrEntityNotFound)

	_, err = Open(context.Background(), "Parts::Both", inlineConfig(40), Options{Registry: transport.NewRegistry()})
	assert.ErrorIs(t, err, errspkg.ErrUnknownTransport)

	p := openParticipant(t, 40, "Parts::Both")
	_, err = p.Writer("Pub::Nope")
	assert.ErrorIs(t, err, errspkg.ErrEntityNotFound)
	_, err = p.Reader("Sub::Nope")
	assert.ErrorIs(t, err, errspkg.ErrEntityNotFound)
}

func TestWriteReadTake(t *testing.T) {
	p := openParticipant(t, 41, "Parts::Both")
	w, r := handles(t, p)

	w.SetString("color", "BLUE")
	w.SetNumber("x", 3)
	w.SetNumber("inner.z", 7)
	require.NoError(t, w.Write(context.Background()))

	ok, err := p.WaitForData(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	r.Read()
	r.Read()
	assert.Equal(t, 1, r.Len(), "read keeps samples queued")
	assert.Equal(t, "BLUE", r.String(0, "color"))
	assert.Equal(t, 3.0, r.Number(0, "x"))
	assert.Equal(t, 7.0, r.Number(0, "inner.z"))
	assert.False(t, r.Bool(0, "hidden"))

	ok, err = p.WaitForData(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok, "read samples do not wake a wait")

	r.Take()
	assert.Equal(t, 1, r.Len())
	r.Take()
	assert.Equal(t, 0, r.Len())

	assert.Equal(t, 0.0, r.Number(5, "x"))
	_, err = r.JSON(5)
	assert.ErrorIs(t, err, errspkg.ErrInvalidArgument)
}

func TestSampleInfoAndJSON(t *testing.T) {
	p := openParticipant(t, 42, "Parts::Both")
	w, r := handles(t, p)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	require.NoError(t, w.SetJSON([]byte(`{"color":"RED","angle":12.5,"list":[1,2]}`)))
	require.NoError(t, w.Write(ctx))
	require.NoError(t, w.DisposeInstance(context.Background()))

	r.Take()
	require.Equal(t, 2, r.Len())

	info, err := r.Info(0)
	require.NoError(t, err)
	assert.True(t, info.ValidData)
	assert.Equal(t, writerName, info.Writer)
	assert.Equal(t, "ShapeType", info.TypeName)
	assert.Equal(t, traceID.String(), info.TraceID)
	assert.Equal(t, metadata.InstanceAlive, info.InstanceState)
	assert.NotEmpty(t, info.Identity)
	assert.WithinDuration(t, time.Now(), info.SourceTimestamp, time.Minute)

	data, err := r.JSON(0)
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, jsoncodec.Unmarshal(data, &obj))
	assert.Equal(t, "RED", obj["color"])
	assert.Equal(t, 12.5, obj["angle"])
	assert.Equal(t, []any{1.0, 2.0}, obj["list"])
	assert.Equal(t, 0.0, obj["x"], "unset members are present with defaults")

	disposed, err := r.Info(1)
	require.NoError(t, err)
	assert.False(t, disposed.ValidData)
	assert.Equal(t, metadata.InstanceDisposed, disposed.InstanceState)
	assert.Empty(t, r.String(1, "color"), "invalid samples expose defaults")

	data, err = r.JSON(1)
	require.NoError(t, err)
	require.NoError(t, jsoncodec.Unmarshal(data, &obj))
	assert.Equal(t, "", obj["color"])

	assert.ErrorIs(t, w.SetJSON([]byte(`[1]`)), errspkg.ErrInvalidArgument)
	assert.ErrorIs(t, w.SetJSON([]byte(`null`)), errspkg.ErrInvalidArgument)
}

func TestClearResetsInstance(t *testing.T) {
	p := openParticipant(t, 43, "Parts::Both")
	w, r := handles(t, p)

	w.SetNumber("x", 10)
	w.Clear()
	w.SetNumber("y", 2)
	require.NoError(t, w.Write(context.Background()))

	r.Take()
	require.Equal(t, 1, r.Len())
	assert.Equal(t, 0.0, r.Number(0, "x"))
	assert.Equal(t, 2.0, r.Number(0, "y"))
}

func TestHistoryDepth(t *testing.T) {
	pub := openParticipant(t, 44, "Parts::Both")
	sub := openParticipant(t, 44, "Parts::Shallow")
	w, _ := handles(t, pub)
	r, err := sub.Reader(readerName)
	require.NoError(t, err)

	for i := range 5 {
		w.SetNumber("x", float64(i))
		require.NoError(t, w.Write(context.Background()))
	}

	r.Take()
	require.Equal(t, 2, r.Len())
	assert.Equal(t, 3.0, r.Number(0, "x"))
	assert.Equal(t, 4.0, r.Number(1, "x"))
}

func TestWaitForData(t *testing.T) {
	t.Run("times out", func(t *testing.T) {
		p := openParticipant(t, 45, "Parts::Both")
		start := time.Now()
		ok, err := p.WaitForData(context.Background(), 50*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("negative timeout", func(t *testing.T) {
		p := openParticipant(t, 46, "Parts::Both")
		_, err := p.WaitForData(context.Background(), -time.Millisecond)
		assert.ErrorIs(t, err, errspkg.ErrInvalidArgument)
	})

	t.Run("wakes on arrival", func(t *testing.T) {
		p := openParticipant(t, 47, "Parts::Both")
		w, r := handles(t, p)

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = w.Write(context.Background())
		}()
		ok, err := p.WaitForData(context.Background(), Infinite, r)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("context cancellation", func(t *testing.T) {
		p := openParticipant(t, 48, "Parts::Both")
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := p.WaitForData(ctx, Infinite)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("close unblocks", func(t *testing.T) {
		p, err := Open(context.Background(), "Parts::Both", inlineConfig(49), Options{})
		require.NoError(t, err)
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = p.Close()
		}()
		_, err = p.WaitForData(context.Background(), Infinite)
		assert.ErrorIs(t, err, errspkg.ErrDisposed)
		assert.True(t, p.Closed())
	})
}

func TestForeignTypeIsDropped(t *testing.T) {
	p := openParticipant(t, 50, "Parts::Both")
	w, r := handles(t, p)

	w.schema = &Schema{Name: "OtherType", byName: map[string]*Member{}}
	require.NoError(t, w.Write(context.Background()))

	r.Take()
	assert.Equal(t, 0, r.Len())
}

func TestCloseReleasesBus(t *testing.T) {
	before := channel.OpenBuses()
	p, err := Open(context.Background(), "Parts::Both", inlineConfig(51), Options{})
	require.NoError(t, err)
	assert.Equal(t, before+1, channel.OpenBuses())

	w, r := handles(t, p)
	assert.Equal(t, 1, w.Handles())
	r.Release()
	r.Release()
	assert.Equal(t, 0, r.Handles())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, before, channel.OpenBuses())
}
