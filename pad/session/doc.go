// Package session binds WebSocket connections to virtual controllers.
//
// The session package implements:
//   - A Registry mapping connection identities to live sessions
//   - Monotonic player numbering per process
//   - Command application and full-state commits per session
//   - Exactly-once teardown of every controller handle
//
// Core Types:
//
// Registry owns the identity to Session table and the player counter. It is
// an ordinary value: create one per listener, and tests may create as many
// as they like. Session owns one device.Handle for the lifetime of one
// connection.
//
// Lifecycle:
//
//  1. Registry.Create allocates a controller and registers the session
//  2. The transport sends Session.Hello to the client
//  3. Every inbound frame goes through Session.Receive, in arrival order
//  4. On close, transport failure or a device error the transport calls
//     Session.Teardown, which resets and releases the controller and removes
//     the registry entry
//
// Teardown is idempotent and never returns an error. Failures while
// releasing the controller are logged with the session's fields.
//
// Concurrency:
//
// Registry methods are safe for concurrent use. A Session's Receive, Apply
// and Teardown belong to the goroutine serving its connection; Info and
// Disconnect may be called from anywhere.
//
// Usage:
//
//	registry := session.NewRegistry(binding, logger)
//
//	sess, err := registry.Create(conn.RemoteAddr().String(), func() { conn.Close() })
//	if err != nil {
//		conn.Close()
//		return
//	}
//	defer sess.Teardown()
package session
