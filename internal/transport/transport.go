// Package transport defines the byte-oriented transport contract NxScope
// runs over, plus concrete adapters: a real serial port and an in-process
// loopback dummy device.
package transport

import "time"

// Transport is the contract every NxScope byte transport must satisfy (spec
// §6): Read never blocks indefinitely, Write is a best-effort single write,
// and DropAll discards any buffered-but-unread bytes (used at the start of
// the connect handshake to clear stale replies from a previous session).
type Transport interface {
	// Start prepares the transport for use (spec §4.4 connect step 1:
	// "start the transport"). Idempotent: calling Start while already
	// started is a no-op. Adapters that are ready as soon as they're
	// constructed (e.g. Serial, already open) implement this as a no-op.
	Start() error
	// Stop releases any background resources Start acquired, without
	// closing the transport permanently (Close does that). Idempotent.
	Stop()
	// Read blocks for at most its implementation-defined timeout and returns
	// whatever bytes are available, or (0, nil) on timeout with no data.
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// DropAll discards buffered unread bytes without blocking.
	DropAll()
	// Close releases the underlying resource. Safe to call more than once.
	Close() error
}

// defaultReadTimeout is used by adapters that need a finite poll interval to
// honor "never blocks indefinitely" without spinning.
const defaultReadTimeout = 200 * time.Millisecond
