// Package mcp provides a Model Context Protocol server for administering a
// running webpad server.
//
// The package is a thin client: every tool proxies to the REST API, so the
// same tools work over stdio against a remote server or mounted in-process
// at /mcp.
//
// MCP Tools:
//   - list_sessions: List connected controllers
//   - get_session: Details for one player number
//   - disconnect_session: Close a player's connection
//   - server_health: Server status, driver and session count
//
// Transport Modes:
//   - Stdio: `webpad mcp --server-url http://host:8080`
//   - HTTP: served by the main server at /mcp
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
