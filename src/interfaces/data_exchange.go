package interfaces

import "market-pulse/src/models"

// -----------------------------------------------------------------------------
// IDispatcher is the fan-out surface components use to push updates to all
// connections registered under a subscription key.
// -----------------------------------------------------------------------------

type IDispatcher interface {
	// -----------------------------------------------------------------------------
	// Broadcast sends the envelope to every live connection under the key.
	// Failing connections are pruned; delivery to the rest continues.
	Broadcast(key string, message *models.MWireMessage)

	// -----------------------------------------------------------------------------
	// SubscriberCount reports how many connections hold the key.
	SubscriberCount(key string) int
}
