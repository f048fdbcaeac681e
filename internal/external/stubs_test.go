package external

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubImageGeneratorConcurrentSubmitsYieldUniqueTasks(t *testing.T) {
	gen := NewStubImageGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	const n = 32
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := gen.SubmitTask(context.Background(), GenerationTask{Prompt: "banner"})
			require.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate task id %s", id)
		seen[id] = true
	}
}

func TestStubImageGeneratorTaskAlwaysSucceeds(t *testing.T) {
	gen := NewStubImageGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	id, err := gen.SubmitTask(context.Background(), GenerationTask{Prompt: "banner"})
	require.NoError(t, err)

	status, err := gen.GetTask(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, status.State.Terminal())
	assert.Contains(t, status.ImageURL, id)
}
