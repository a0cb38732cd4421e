// Package shared defines shared interfaces and types for external plugins.
package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is a common handshake that is shared by plugin and host.
// Prevents plugins compiled with different versions from running.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AETHERSYNC_PLUGIN",
	MagicCookieValue: "aethersync-embedding-v1",
}

// PluginType identifies the type of plugin.
type PluginType string

const (
	PluginTypeEmbedding PluginType = "embedding"
)

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]plugin.Plugin{
	string(PluginTypeEmbedding): &EmbeddingPlugin{},
}

// Roles passed over the wire. They match types.EmbeddingRole values.
const (
	RoleDocument = "document"
	RoleQuery    = "query"
)

// EmbeddingProvider is the interface that embedding plugins must implement.
// This mirrors pkg/provider.EmbeddingProvider but is self-contained for plugins.
type EmbeddingProvider interface {
	Name() string
	Embed(text, role string) ([]float32, error)
	Dimensions() int
	Warmup() error
	Close() error
}

// EmbeddingPlugin is the plugin.Plugin implementation for embedding providers.
type EmbeddingPlugin struct {
	Impl EmbeddingProvider
}

func (p *EmbeddingPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &EmbeddingRPCServer{Impl: p.Impl}, nil
}

func (p *EmbeddingPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &EmbeddingRPCClient{client: c}, nil
}
