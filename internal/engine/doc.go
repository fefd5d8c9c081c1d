// Package engine runs the synchronization loop for one open sheet.
//
// A Session owns a canonical store and processes a single FIFO queue of
// messages: local mutations from the user, acks and nacks from the
// persistence layer, deltas pushed by the service, and re-fetch results.
// All store writes happen on the one goroutine running Run, so the store
// itself needs no locking and every interleaving of local and remote
// activity resolves in a single, observable order.
//
// Persistence calls never run on the loop. A local mutation is applied
// optimistically, the grid re-renders, and a short-lived goroutine makes
// the service call and reports back through the queue.
package engine
