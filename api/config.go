// Package api provides an HTTP API for reading and changing the object graph
// held by a coordinator.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// ReadOnly rejects imports and deletes, and hides the MCP import tool.
	ReadOnly bool
}
