// Package storage holds the in-memory state the service keeps between requests,
// currently the list of revoked token identifiers.
package storage
