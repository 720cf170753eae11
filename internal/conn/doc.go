// Package conn manages logical connections to remote tool providers.
//
// # Overview
//
// Each provider holds one persistent transport to the bridge. The package
// tracks those connections in a Registry, performs the capability-discovery
// handshake on each new connection, and multiplexes concurrent
// request/response exchanges on a single transport using correlation IDs.
//
// # Registry
//
// The Registry is created at the composition root and injected into every
// consumer:
//
//	registry := conn.NewRegistry(30*time.Second, logger)
//
// Key operations:
//
//   - Register(identity, transport): add a fresh, not-ready connection
//   - Lookup(identity): fetch a connection; absence is not an error
//   - Unregister(identity): remove and close; idempotent
//   - Initialize(ctx, conn): run the initialize → tools/list handshake
//   - ReadLoop(conn): the per-connection inbound dispatcher
//
// # Request/Response Correlation
//
// Call issues a uniquely identified request and parks the caller on a
// one-shot channel until the dispatcher routes back the response with the
// matching ID:
//
//	pending map[string]chan *protocol.Inbound
//
// Responses may arrive in any order; each resolves exactly the one matching
// pending request. A request with no response within the configured timeout
// fails with ErrRequestTimeout and leaves no residual pending entry. When a
// transport closes, every pending request on that connection is rejected
// immediately with ErrConnectionClosed rather than being left to time out.
//
// # Thread Safety
//
// The registry map and each connection's pending set are guarded by mutexes;
// any number of concurrent Call invocations may race the dispatcher safely.
package conn
