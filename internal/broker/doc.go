// Package broker exposes the engine-facing trading surface.
//
// The facade validates order intents, decides between opening and closing
// by trade id, and forwards work to the ledger pool. Worker callbacks come
// back through the ledger.Notifier interface and leave as ordered
// notifications on bounded queues.
package broker
