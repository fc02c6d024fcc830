package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/connector/internal/runtime/metadata"
	_ "github.com/drblury/connector/transport/io"
	_ "github.com/drblury/connector/transport/sqlite"
)

// Participants that share nothing but a file see each other's samples.
func TestFileBackedDomains(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]map[string]string{
		"sqlite": {
			"CONNECTOR_TRANSPORT_SYSTEM":      "sqlite",
			"CONNECTOR_TRANSPORT_SQLITE_FILE": filepath.Join(dir, "samples.db"),
		},
		"io": {
			"CONNECTOR_TRANSPORT_SYSTEM":  "io",
			"CONNECTOR_TRANSPORT_IO_FILE": filepath.Join(dir, "samples.jsonl"),
		},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			writerSide := openParticipant(t, 60, "Parts::Both")
			readerSide := openParticipant(t, 60, "Parts::Shallow")
			assert.Equal(t, name, writerSide.Config().Transport.System)

			w, err := writerSide.Writer(writerName)
			require.NoError(t, err)
			r, err := readerSide.Reader(readerName)
			require.NoError(t, err)

			w.SetString("color", "YELLOW")
			w.SetNumber("x", 11)
			require.NoError(t, w.Write(context.Background()))

			ok, err := readerSide.WaitForData(context.Background(), 5*time.Second)
			require.NoError(t, err)
			require.True(t, ok)

			r.Take()
			require.Equal(t, 1, r.Len())
			assert.Equal(t, "YELLOW", r.String(0, "color"))
			assert.Equal(t, 11.0, r.Number(0, "x"))

			info, err := r.Info(0)
			require.NoError(t, err)
			assert.True(t, info.ValidData)
			assert.Equal(t, metadata.InstanceAlive, info.InstanceState)
			assert.Equal(t, writerName, info.Writer)
		})
	}
}
