// Package host provides the plugin host for loading external plugins.
package host

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/spetr/aethersync/pkg/plugin/shared"
	"github.com/spetr/aethersync/pkg/provider"
)

// Manager manages external plugins.
type Manager struct {
	pluginsDir string
	plugins    map[string]*LoadedPlugin
	mu         sync.RWMutex
	logger     hclog.Logger
}

// LoadedPlugin represents a loaded plugin.
type LoadedPlugin struct {
	Name      string
	Path      string
	Client    *plugin.Client
	Embedding shared.EmbeddingProvider
}

// NewManager creates a new plugin manager.
func NewManager(pluginsDir string) *Manager {
	// go-plugin logs through hclog; keep it quiet unless something breaks
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "plugins",
		Level:  hclog.Warn,
		Output: os.Stderr,
	})

	return &Manager{
		pluginsDir: pluginsDir,
		plugins:    make(map[string]*LoadedPlugin),
		logger:     logger,
	}
}

// DiscoverPlugins lists executables in the plugins directory.
func (m *Manager) DiscoverPlugins() ([]string, error) {
	if _, err := os.Stat(m.pluginsDir); os.IsNotExist(err) {
		return nil, nil // No plugins directory
	}

	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var plugins []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0111 != 0 {
			plugins = append(plugins, entry.Name())
		}
	}

	return plugins, nil
}

// LoadEmbedding starts the named plugin binary and dispenses its embedding provider.
func (m *Manager) LoadEmbedding(name string) (*EmbeddingAdapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, exists := m.plugins[name]; exists {
		return NewEmbeddingAdapter(name, p.Embedding), nil
	}

	pluginPath := filepath.Join(m.pluginsDir, name)
	if _, err := os.Stat(pluginPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("plugin not found: %s", pluginPath)
	}

	slog.Info("loading plugin", "name", name, "path", pluginPath)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: shared.Handshake,
		Plugins:         shared.PluginMap,
		Cmd:             exec.Command(pluginPath),
		Logger:          m.logger,
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(string(shared.PluginTypeEmbedding))
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	impl, ok := raw.(shared.EmbeddingProvider)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin does not implement EmbeddingProvider")
	}

	m.plugins[name] = &LoadedPlugin{
		Name:      name,
		Path:      pluginPath,
		Client:    client,
		Embedding: impl,
	}
	slog.Info("plugin loaded", "name", name, "dimensions", impl.Dimensions())

	return NewEmbeddingAdapter(name, impl), nil
}

// UnloadPlugin closes the provider and kills the plugin process.
func (m *Manager) UnloadPlugin(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.plugins[name]
	if !exists {
		return nil
	}

	err := p.Embedding.Close()
	p.Client.Kill()

	delete(m.plugins, name)
	slog.Info("plugin unloaded", "name", name)

	return err
}

// UnloadAll unloads all plugins.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, p := range m.plugins {
		p.Embedding.Close()
		p.Client.Kill()
		slog.Debug("plugin unloaded", "name", name)
	}

	m.plugins = make(map[string]*LoadedPlugin)
}

// ListLoaded returns the names of loaded plugins, sorted.
func (m *Manager) ListLoaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// managedEmbedding unloads its plugin process on Close.
type managedEmbedding struct {
	*EmbeddingAdapter
	manager *Manager
}

func (e *managedEmbedding) Close() error {
	return e.manager.UnloadPlugin(e.name)
}

// NewEmbeddingFactory returns a registry factory that loads cfg.Model as a
// plugin binary from pluginsDir.
func NewEmbeddingFactory(pluginsDir string) provider.EmbeddingFactory {
	return func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		dir := pluginsDir
		if cfg.PluginDir != "" {
			dir = cfg.PluginDir
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("plugin embedding needs the plugin binary name as model")
		}
		m := NewManager(dir)
		adapter, err := m.LoadEmbedding(cfg.Model)
		if err != nil {
			return nil, err
		}
		if cfg.Dimensions != 0 && adapter.Dimensions() != cfg.Dimensions {
			m.UnloadAll()
			return nil, fmt.Errorf("plugin %s produces %d dimensions, want %d", cfg.Model, adapter.Dimensions(), cfg.Dimensions)
		}
		return &managedEmbedding{EmbeddingAdapter: adapter, manager: m}, nil
	}
}
