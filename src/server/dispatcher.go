package server

import (
	"sync"
	"sync/atomic"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// Broadcast Dispatcher
// -----------------------------------------------------------------------------

// broadcastSampleCap bounds the rolling window of broadcast durations kept
// for the metrics endpoint.
const broadcastSampleCap = 500

// Dispatcher fans envelopes out to every connection under a subscription key.
// Enqueueing is non-blocking: a client whose buffer is full is pruned so one
// slow consumer never stalls the stream for the rest.
type Dispatcher struct {
	Registry *Registry
	Logger   *logger.Logger

	messagesBroadcast  atomic.Int64
	droppedConnections atomic.Int64

	sampleMu  sync.Mutex
	samples   []float64
	sampleIdx int
}

// -----------------------------------------------------------------------------

func NewDispatcher(registry *Registry, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		Registry: registry,
		Logger:   log,
		samples:  make([]float64, 0, broadcastSampleCap),
	}
}

// -----------------------------------------------------------------------------

// Broadcast delivers the envelope to the key's connections, pruning any that
// cannot keep up.
func (d *Dispatcher) Broadcast(key string, message *models.MWireMessage) {
	clients := d.Registry.Snapshot(key)
	if len(clients) == 0 {
		return
	}

	start := time.Now()

	var dead []*Client
	for _, c := range clients {
		if !c.trySend(message) {
			dead = append(dead, c)
		}
	}

	for _, c := range dead {
		d.Logger.Warning("Pruning unresponsive client %s on %s", c.ID, key)
		d.Registry.Leave(key, c)
		c.shutdown()
		d.droppedConnections.Add(1)
	}

	d.messagesBroadcast.Add(int64(len(clients) - len(dead)))
	d.recordSample(float64(time.Since(start).Microseconds()) / 1000.0)
}

// -----------------------------------------------------------------------------

// SubscriberCount reports how many connections hold the key.
func (d *Dispatcher) SubscriberCount(key string) int {
	return d.Registry.Count(key)
}

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

func (d *Dispatcher) MessagesBroadcast() int64 {
	return d.messagesBroadcast.Load()
}

func (d *Dispatcher) DroppedConnections() int64 {
	return d.droppedConnections.Load()
}

// BroadcastStats returns the mean and standard deviation of recent broadcast
// durations in milliseconds.
func (d *Dispatcher) BroadcastStats() (mean, std float64) {
	d.sampleMu.Lock()
	window := make([]float64, len(d.samples))
	copy(window, d.samples)
	d.sampleMu.Unlock()

	return utils.CalculateMeanStd(window)
}

// -----------------------------------------------------------------------------

func (d *Dispatcher) recordSample(ms float64) {
	d.sampleMu.Lock()
	if len(d.samples) < broadcastSampleCap {
		d.samples = append(d.samples, ms)
	} else {
		d.samples[d.sampleIdx%broadcastSampleCap] = ms
	}
	d.sampleIdx++
	d.sampleMu.Unlock()
}
