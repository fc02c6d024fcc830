package runtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/drblury/connector/transport/channel"
)

const (
	writerName = "MyPublisher::MySquareWriter"
	readerName = "MySubscriber::MySquareReader"
)

// shapesConfig is the shapes demo configuration on its own domain so tests do
// not observe each other's samples.
func shapesConfig(domainID int) string {
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
      - {name: shapesize, type: int32}
      - {name: angle, type: float32}
      - {name: hidden, type: bool}
      - {name: fillKind, type: enum}
      - {name: list, type: int32, sequence: true, max_length: 10}
      - {name: inner, type: InnerType}
domain_libraries:
  MyDomainLibrary:
    MyDomain:
      domain_id: %d
      transport: {system: channel}
      topics:
        Square: {type: ShapeType}
participant_libraries:
  MyParticipantLibrary:
    Zero:
      domain: MyDomainLibrary::MyDomain
      publishers:
        MyPublisher:
          writers:
            MySquareWriter: {topic: Square}
      subscribers:
        MySubscriber:
          readers:
            MySquareReader: {topic: Square}
    ShapePublisher:
      domain: MyDomainLibrary::MyDomain
      publishers:
        MyPublisher:
          writers:
            MySquareWriter: {topic: Square}
    ShapeSubscriber:
      domain: MyDomainLibrary::MyDomain
      subscribers:
        MySubscriber:
          readers:
            MySquareReader: {topic: Square, history_depth: 100}
`, domainID)
}

func newConnector(t *testing.T, domainID int, participant string, opts ...Option) *Connector {
	t.Helper()
	c, err := NewConnector(context.Background(), "MyParticipantLibrary::"+participant, shapesConfig(domainID), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Dispose() })
	return c
}

// loopback opens the Zero participant, which reads what it writes.
func loopback(t *testing.T, domainID int, opts ...Option) (*Connector, *Input, *Output) {
	t.Helper()
	c := newConnector(t, domainID, "Zero", opts...)
	in, err := c.GetInput(readerName)
	require.NoError(t, err)
	out, err := c.GetOutput(writerName)
	require.NoError(t, err)
	return c, in, out
}
