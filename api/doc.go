// Package api provides the HTTP surface of the gamepad server.
//
// The api package implements:
//   - The controller WebSocket endpoint, behind an optional accept-rate limit
//   - Session listing and inspection
//   - Administrative disconnect
//   - Static file serving for the browser client
//
// Endpoints:
//
//   - GET /ws - Upgrade to a controller connection
//   - GET /api/health - Server status
//   - GET /api/sessions - List live sessions ordered by player number
//   - GET /api/sessions/{player} - Get one session
//   - DELETE /api/sessions/{player} - Close the session's connection
//
// Usage:
//
//	ws := websocket.NewHandler(registry, websocket.DefaultOptions(), logger)
//	server := api.NewServer(registry, ws, api.Options{PublicDir: "public"}, logger)
//	http.ListenAndServe(":8080", server)
//
// Error Handling:
//
// Errors are returned as JSON with appropriate HTTP status codes:
//
//	{
//	  "error": "error message"
//	}
package api
