package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/utils"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Registry) {
	t.Helper()
	r := NewRegistry(context.Background(), logger.NewLogger("dispatcher-test"))
	return NewDispatcher(r, logger.NewLogger("dispatcher-test")), r
}

func wireMessage(msgType string) *models.MWireMessage {
	return &models.MWireMessage{Type: msgType, Timestamp: utils.EpochSeconds()}
}

func TestDispatcher_DeliversToAllSubscribers(t *testing.T) {
	d, r := newTestDispatcher(t)

	a := bareClient("sym:BTC", 4)
	b := bareClient("sym:BTC", 4)
	require.NoError(t, r.Join("sym:BTC", a))
	require.NoError(t, r.Join("sym:BTC", b))

	d.Broadcast("sym:BTC", wireMessage(models.MsgPriceUpdate))

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			assert.Equal(t, models.MsgPriceUpdate, msg.Type)
		default:
			t.Fatalf("client %s received nothing", c.ID)
		}
	}

	assert.Equal(t, int64(2), d.MessagesBroadcast())
	assert.Equal(t, int64(0), d.DroppedConnections())
	assert.Equal(t, 2, d.SubscriberCount("sym:BTC"))
}

func TestDispatcher_PrunesSlowClient(t *testing.T) {
	d, r := newTestDispatcher(t)

	slow := bareClient("sym:BTC", 1)
	healthy := bareClient("sym:BTC", 4)
	require.NoError(t, r.Join("sym:BTC", slow))
	require.NoError(t, r.Join("sym:BTC", healthy))

	// Fill the slow client's buffer so the next enqueue fails.
	slow.send <- wireMessage(models.MsgPriceUpdate)

	d.Broadcast("sym:BTC", wireMessage(models.MsgNewCandle))

	assert.Equal(t, int64(1), d.DroppedConnections())
	assert.Equal(t, 1, r.Count("sym:BTC"))

	// The pruned client is shut down, the healthy one still gets the message.
	select {
	case <-slow.done:
	default:
		t.Fatal("pruned client was not shut down")
	}
	select {
	case msg := <-healthy.send:
		assert.Equal(t, models.MsgNewCandle, msg.Type)
	default:
		t.Fatal("healthy client received nothing")
	}

	// Later broadcasts only count the survivor.
	d.Broadcast("sym:BTC", wireMessage(models.MsgPriceUpdate))
	assert.Equal(t, int64(2), d.MessagesBroadcast())
}

func TestDispatcher_NoSubscribersIsNoop(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Broadcast("sym:NOBODY", wireMessage(models.MsgPriceUpdate))

	assert.Equal(t, int64(0), d.MessagesBroadcast())
	mean, std := d.BroadcastStats()
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, std)
}

func TestDispatcher_BroadcastStats(t *testing.T) {
	d, r := newTestDispatcher(t)

	c := bareClient("sym:BTC", 16)
	require.NoError(t, r.Join("sym:BTC", c))

	for i := 0; i < 10; i++ {
		d.Broadcast("sym:BTC", wireMessage(models.MsgPriceUpdate))
	}

	mean, std := d.BroadcastStats()
	assert.GreaterOrEqual(t, mean, 0.0)
	assert.GreaterOrEqual(t, std, 0.0)
	assert.Equal(t, int64(10), d.MessagesBroadcast())
}
