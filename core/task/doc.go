// Package task models one logical charge point operation and its per target
// outcomes.
//
// A Task is created with a fixed, ordered set of charge point identifiers.
// Each identifier owns a pre-allocated cell that moves once from Pending to
// one of Success, Fault, TransportError or TimedOut through an atomic
// compare-and-swap, so concurrent writers for different targets never contend
// and racing writers for the same target resolve to whichever lands first.
// A task is complete when no cell is Pending.
//
// Registry keeps tasks addressable by id until their final snapshot has been
// consumed or their retention window has passed.
package task
