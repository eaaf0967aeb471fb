package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/voicepilot/config"
	"github.com/babelcloud/voicepilot/internal/memory"
	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

type failingSink struct{ calls int }

var _ memory.Sink = (*failingSink)(nil)

func (f *failingSink) RecordAction(context.Context, memory.ActionRecord) error {
	f.calls++
	return errors.New("memory down")
}

func (f *failingSink) RecordTurn(context.Context, string, model.Role, string) error {
	f.calls++
	return errors.New("memory down")
}

func (f *failingSink) Context(context.Context, string) (*model.SessionContext, error) {
	f.calls++
	return nil, errors.New("memory down")
}

func TestGuardSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingSink{}
	g := memory.NewGuard(inner, "flaky", logger.New())

	assert.NoError(t, g.RecordTurn(ctx, "s1", model.RoleUser, "hi"))
	assert.NoError(t, g.RecordAction(ctx, memory.NewActionRecord("s1", succeeded(model.ActionClick, nil), "")))

	sc, err := g.Context(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sc.SessionID)
	assert.Empty(t, sc.ConversationHistory)
	assert.Equal(t, 3, inner.calls)
	assert.True(t, g.Available())
}

func TestGuardNilIsNoop(t *testing.T) {
	g := memory.NewGuard(nil, "", logger.New())
	assert.False(t, g.Available())
	assert.Equal(t, "none", g.Backend())
}

func TestNewDegradesWhenBackendUnavailable(t *testing.T) {
	g, closeFn := memory.New(context.Background(), config.MemoryConfig{Backend: "mem0"}, logger.New())
	defer closeFn()
	assert.False(t, g.Available())

	g, closeFn = memory.New(context.Background(), config.MemoryConfig{}, logger.New())
	defer closeFn()
	assert.True(t, g.Available())
	assert.Equal(t, "inmemory", g.Backend())

	g, closeFn = memory.New(context.Background(), config.MemoryConfig{Backend: "cassette"}, logger.New())
	defer closeFn()
	assert.False(t, g.Available())
}

func TestGuardForwardsForget(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewInMemory(10)
	g := memory.NewGuard(inner, "inmemory", logger.New())
	require.NoError(t, g.RecordTurn(ctx, "s1", model.RoleUser, "hello"))

	var f memory.Forgetter = g
	f.Forget("s1")
	sc, err := inner.Context(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sc.ConversationHistory)

	assert.NotPanics(t, func() { memory.NewGuard(&failingSink{}, "flaky", logger.New()).Forget("s1") })
}
