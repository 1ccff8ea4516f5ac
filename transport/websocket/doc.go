// Package websocket provides the WebSocket transport for webpad.
//
// The websocket package implements:
//   - Upgrading browser connections at the controller endpoint
//   - One session, and one virtual controller, per connection
//   - The hello handshake carrying the assigned player number
//   - Strictly ordered delivery of input frames to the session
//   - Keepalive pings and read deadlines
//   - Teardown on every exit path
//
// Architecture:
//
// Handler is an http.Handler. Each accepted connection gets a Client that
// runs its read loop on the HTTP handler goroutine, so frames from one
// browser are applied in the order they arrived. A second goroutine only
// sends pings and never touches the controller.
//
// Message Protocol:
//
// After the upgrade the server sends exactly one application message:
//   - Outgoing: {"type":"hello","player":1}
//   - Incoming: button, axis and trigger frames (see package codec)
//
// Frames that do not decode are ignored. The server never acknowledges or
// echoes input.
//
// Connection Lifecycle:
//
// 1. Browser connects to /ws
// 2. A controller is allocated and the session registered
// 3. The hello handshake is written
// 4. Input frames are decoded and committed one by one
// 5. Close, network failure, keepalive timeout, an admin kick or a device
// error ends the read loop and the session is torn down
//
// If the controller cannot be allocated the socket is closed before the
// handshake and nothing is registered.
package websocket
