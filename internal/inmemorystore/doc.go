// Package inmemorystore provides a thread-safe, in-memory implementation
// of the bakestore.Store interface. Results live only as long as the job run
// that produced them.
package inmemorystore
