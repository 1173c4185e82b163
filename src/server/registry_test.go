package server

import (
	"context"
	"fmt"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-pulse/src/logger"
	"market-pulse/src/models"
)

// bareClient builds a connection-less client for registry and dispatcher
// tests; nothing here touches the socket.
func bareClient(key string, buffer int) *Client {
	return &Client{
		ID:   ulid.Make().String(),
		Key:  key,
		send: make(chan *models.MWireMessage, buffer),
		done: make(chan struct{}),
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(context.Background(), logger.NewLogger("registry-test"))
}

func TestRegistry_FirstJoinStartsOnce(t *testing.T) {
	r := newTestRegistry(t)

	started := 0
	r.OnFirst = func(ctx context.Context, key string) error {
		started++
		return nil
	}

	a := bareClient("sym:BTC", 4)
	b := bareClient("sym:BTC", 4)

	require.NoError(t, r.Join("sym:BTC", a))
	require.NoError(t, r.Join("sym:BTC", b))

	assert.Equal(t, 1, started)
	assert.Equal(t, 2, r.Count("sym:BTC"))
	assert.Len(t, r.Snapshot("sym:BTC"), 2)
}

func TestRegistry_FailedStartLeavesNothingBehind(t *testing.T) {
	r := newTestRegistry(t)

	calls := 0
	r.OnFirst = func(ctx context.Context, key string) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("upstream unavailable")
		}
		return nil
	}

	c := bareClient("sym:BTC", 4)
	err := r.Join("sym:BTC", c)
	require.Error(t, err)
	assert.Equal(t, 0, r.Count("sym:BTC"))

	// A later join retries the start from scratch.
	require.NoError(t, r.Join("sym:BTC", c))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, r.Count("sym:BTC"))
}

func TestRegistry_LastLeaveStopsAndCancels(t *testing.T) {
	r := newTestRegistry(t)

	var keyCtx context.Context
	stopped := 0
	r.OnFirst = func(ctx context.Context, key string) error {
		keyCtx = ctx
		return nil
	}
	r.OnLast = func(key string) { stopped++ }

	a := bareClient("sym:BTC", 4)
	b := bareClient("sym:BTC", 4)
	require.NoError(t, r.Join("sym:BTC", a))
	require.NoError(t, r.Join("sym:BTC", b))

	r.Leave("sym:BTC", a)
	assert.Equal(t, 0, stopped)
	require.NoError(t, keyCtx.Err())

	r.Leave("sym:BTC", b)
	assert.Equal(t, 1, stopped)
	assert.Error(t, keyCtx.Err())
	assert.Equal(t, 0, r.Count("sym:BTC"))
}

func TestRegistry_RejoinAfterStopStartsAgain(t *testing.T) {
	r := newTestRegistry(t)

	started := 0
	stopped := 0
	r.OnFirst = func(ctx context.Context, key string) error {
		started++
		return nil
	}
	r.OnLast = func(key string) { stopped++ }

	c := bareClient("sym:ETH", 4)
	require.NoError(t, r.Join("sym:ETH", c))
	r.Leave("sym:ETH", c)

	d := bareClient("sym:ETH", 4)
	require.NoError(t, r.Join("sym:ETH", d))

	assert.Equal(t, 2, started)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, r.Count("sym:ETH"))
}

func TestRegistry_LeaveIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	stopped := 0
	r.OnLast = func(key string) { stopped++ }

	c := bareClient("sym:BTC", 4)
	require.NoError(t, r.Join("sym:BTC", c))

	r.Leave("sym:BTC", c)
	r.Leave("sym:BTC", c)
	r.Leave("sym:BTC", bareClient("sym:BTC", 4))
	r.Leave("sym:UNKNOWN", c)

	assert.Equal(t, 1, stopped)
}

func TestRegistry_Counts(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Join(models.KeyMarket, bareClient(models.KeyMarket, 4)))
	require.NoError(t, r.Join(models.KeyMarket, bareClient(models.KeyMarket, 4)))
	require.NoError(t, r.Join("sym:BTC", bareClient("sym:BTC", 4)))
	require.NoError(t, r.Join("user:u1", bareClient("user:u1", 4)))

	connections, symbols, users := r.Counts()
	assert.Equal(t, 4, connections)
	assert.Equal(t, 1, symbols)
	assert.Equal(t, 1, users)

	assert.Equal(t, []string{"BTC"}, r.ActiveSymbols())
}
