// ABOUTME: Sentinel errors for the connection registry and correlation layer.
// ABOUTME: Callers distinguish outcomes with errors.Is.

package conn

import "errors"

// ErrConnectionNotFound indicates no registry entry exists for an identity.
var ErrConnectionNotFound = errors.New("connection not found")

// ErrSessionNotReady indicates the connection exists but its handshake has
// not completed, so it cannot serve chat requests.
var ErrSessionNotReady = errors.New("session not initialized")

// ErrRequestTimeout indicates a correlated request received no matching
// response within the configured window. The pending entry is removed; a
// late response for the same ID is silently discarded.
var ErrRequestTimeout = errors.New("request timed out")

// ErrConnectionClosed indicates the transport closed while a request was in
// flight. All pending requests on a closing connection fail with this
// immediately rather than waiting out their timeouts.
var ErrConnectionClosed = errors.New("connection closed")

// ErrDuplicateRequestID indicates a correlation ID collision among pending
// requests on one connection. IDs are random UUIDs, so in practice this only
// surfaces from tests exercising the invariant.
var ErrDuplicateRequestID = errors.New("duplicate request ID")
