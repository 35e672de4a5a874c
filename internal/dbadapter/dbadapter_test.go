package dbadapter

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePlayer struct {
	UID  int64  `json:"uid"`
	Name string `json:"name"`
}

func TestRunSyncRoundTripsThroughBackend(t *testing.T) {
	backend := NewMemoryBackend()
	adapter := NewAdapter(backend, 8, zerolog.Nop())
	go adapter.Run()
	defer adapter.Close()

	blob, err := MarshalBlob(samplePlayer{UID: 1, Name: "Alice"})
	require.NoError(t, err)

	_, err = adapter.RunSync(func(b Backend) (any, error) {
		return nil, b.SaveBlob(context.Background(), "players", "1", blob)
	})
	require.NoError(t, err)

	value, err := adapter.RunSync(func(b Backend) (any, error) {
		loaded, ok, err := b.LoadBlob(context.Background(), "players", "1")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFound
		}
		return loaded, nil
	})
	require.NoError(t, err)

	var out samplePlayer
	require.NoError(t, UnmarshalBlob(value.([]byte), &out))
	assert.Equal(t, "Alice", out.Name)
}

func TestRunAsyncDeliversResultOnChannel(t *testing.T) {
	backend := NewMemoryBackend()
	adapter := NewAdapter(backend, 8, zerolog.Nop())
	go adapter.Run()
	defer adapter.Close()

	ch := adapter.RunAsync(func(b Backend) (any, error) {
		return 42, nil
	})
	result := <-ch
	require.NoError(t, result.Err)
	assert.Equal(t, 42, result.Value)
}
