// Package feed holds the recent-history Event Store and the ingress service.
//
// MemoryStore keeps the last 100 events newest-first behind a single mutex.
// Service applies request defaults, appends to the store and hands the
// serialized new-update envelope to the live channel publisher.
package feed
