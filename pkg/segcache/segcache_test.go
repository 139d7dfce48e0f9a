package segcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/segcache/pkg/options"
)

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	inst, err := NewInstance(context.Background(), "segcache-test",
		options.WithSegmentSize(4096),
		options.WithHeapSize(4096*64),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(context.Background()) })
	return inst
}

func TestInstanceInsertAndGet(t *testing.T) {
	inst := newTestInstance(t)

	require.NoError(t, inst.Insert("coffee", []byte("strong"), nil, 0))

	it, ok := inst.Get("coffee")
	require.True(t, ok)
	require.Equal(t, "strong", string(it.Value()))
	require.Equal(t, 63, inst.FreeSegments())
}

func TestInstanceDelete(t *testing.T) {
	inst := newTestInstance(t)

	require.NoError(t, inst.Insert("coffee", []byte("strong"), nil, 0))
	require.True(t, inst.Delete("coffee"))

	_, ok := inst.Get("coffee")
	require.False(t, ok)
	require.Equal(t, 0, inst.Items())
}

func TestInstanceCas(t *testing.T) {
	inst := newTestInstance(t)

	err := inst.Cas("coffee", []byte("hot"), nil, 0, 0)
	require.Error(t, err)

	require.NoError(t, inst.Insert("coffee", []byte("hot"), nil, 0))

	it, ok := inst.Get("coffee")
	require.True(t, ok)

	require.NoError(t, inst.Cas("coffee", []byte("iced"), nil, 0, it.Cas()))
	got, ok := inst.Get("coffee")
	require.True(t, ok)
	require.Equal(t, "iced", string(got.Value()))
}
