package tool

import "context"

// Provider is an external source of tool definitions, e.g. an MCP server
// connection. Implementations own the underlying transport.
type Provider interface {
	// Tools lists the definitions the provider currently offers.
	Tools(ctx context.Context) ([]*Tool, error)
	// ToolsChanged signals live updates to the tool set. A nil channel
	// means the set is fixed for the provider's lifetime.
	ToolsChanged() <-chan struct{}
	// Close releases the provider's resources.
	Close() error
}
