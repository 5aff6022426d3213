package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beachwatch/go-crowd/errdefs"
)

func TestBuilderDefaultsToHeuristicOnly(t *testing.T) {
	eng, err := NewBuilder().
		WithLogger(quietLogger()).
		Build()
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, BackendNone, eng.Backend())
}

func TestBuilderWithSource(t *testing.T) {
	src := &mockSource{}
	eng, err := NewBuilder().
		WithLogger(quietLogger()).
		WithSource(src).
		Build()
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, "mock", eng.Backend())
}

func TestBuilderUnknownBackend(t *testing.T) {
	_, err := NewBuilder().
		WithLogger(quietLogger()).
		WithBackend("tensorflow", BackendOptions{}).
		Build()
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestBuilderBackendNone(t *testing.T) {
	eng, err := NewBuilder().
		WithLogger(quietLogger()).
		WithBackend(BackendNone, BackendOptions{}).
		Build()
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, BackendNone, eng.Backend())
}

func TestBuilderONNXRequiresModelPath(t *testing.T) {
	_, err := NewBuilder().
		WithLogger(quietLogger()).
		WithBackend(BackendONNX, BackendOptions{}).
		Build()
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestBuilderDNNRejectsMissingModel(t *testing.T) {
	_, err := NewBuilder().
		WithLogger(quietLogger()).
		WithBackend(BackendDNN, BackendOptions{ModelPath: "/nonexistent/yolo.onnx"}).
		Build()
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err))
}

func TestBuilderPigoRejectsMissingCascade(t *testing.T) {
	_, err := NewBuilder().
		WithLogger(quietLogger()).
		WithBackend(BackendPigo, BackendOptions{CascadePath: "/nonexistent/facefinder"}).
		Build()
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err))
}

func TestBuilderErrorShortCircuits(t *testing.T) {
	b := NewBuilder().WithBackend("tensorflow", BackendOptions{})
	require.True(t, b.HasError())

	// Later calls must not clear or mask the original error.
	_, err := b.
		WithLogger(quietLogger()).
		WithConfig(&Config{}).
		WithSource(&mockSource{}).
		Build()
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestBuilderInvalidConfig(t *testing.T) {
	_, err := NewBuilder().
		WithLogger(quietLogger()).
		WithConfig(&Config{Workers: intPtr(0)}).
		Build()
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestMustBuildPanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		NewBuilder().WithBackend("tensorflow", BackendOptions{}).MustBuild()
	})
}

func TestEngineCloseWithoutSource(t *testing.T) {
	eng := NewBuilder().WithLogger(quietLogger()).MustBuild()
	assert.NoError(t, eng.Close())
}
