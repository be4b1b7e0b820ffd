// Package host orchestrates a fleet of worker processes: it spawns and
// connects the configured servers, aggregates their advertised tools and
// resources into global routing tables, and dispatches calls to the owning
// server.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/localrivet/mcphost/logx"
	"github.com/localrivet/mcphost/protocol"
	"github.com/localrivet/mcphost/spawn"
)

// Manager owns every configured server connection plus the aggregated routing
// tables built from their catalogs. All methods are safe for concurrent use.
type Manager struct {
	opts   ConnectionOptions
	logger logx.Logger

	mu             sync.RWMutex
	initialized    bool
	initErr        error
	order          []string
	conns          map[string]*ServerConnection
	toolCache      map[string][]protocol.Tool
	resourceCache  map[string][]protocol.Resource
	toolOwners     map[string]string
	resourceOwners map[string]string
}

// NewManager creates a manager. Zero-valued options get production defaults.
func NewManager(opts ConnectionOptions) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts:   opts,
		logger: opts.Logger,
		conns:  make(map[string]*ServerConnection),
	}
}

// Initialize spawns and connects every configured server concurrently, then
// builds the routing tables from the servers that made it. Individual
// failures are tolerated; only when no server connects does Initialize fail,
// with ErrAllServersFailed.
func (m *Manager) Initialize(ctx context.Context, configs map[string]spawn.Config) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	stale := m.conns
	m.conns = make(map[string]*ServerConnection, len(configs))
	m.order = m.order[:0]
	for name, cfg := range configs {
		m.conns[name] = newServerConnection(name, cfg, m.opts)
		m.order = append(m.order, name)
	}
	// Deterministic order for aggregation: later names override earlier ones.
	sort.Strings(m.order)
	conns := m.conns
	m.initErr = nil
	m.mu.Unlock()

	for _, conn := range stale {
		conn.shutdown()
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *ServerConnection) {
			defer wg.Done()
			if err := conn.connect(ctx); err != nil {
				m.logger.Warn("server %s failed to connect: %v", conn.Name(), err)
			}
		}(conn)
	}
	wg.Wait()

	connected := 0
	for _, conn := range conns {
		if conn.State() == StateConnected {
			connected++
		}
	}
	if connected == 0 {
		m.mu.Lock()
		m.initErr = ErrAllServersFailed
		m.mu.Unlock()
		return ErrAllServersFailed
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	m.logger.Info("initialized with %d/%d servers connected", connected, len(conns))

	return m.MapCapabilities(ctx)
}

// MapCapabilities rebuilds both routing tables from scratch by querying every
// connected server's catalogs. A server whose query fails contributes nothing
// and is skipped with a warning.
func (m *Manager) MapCapabilities(ctx context.Context) error {
	order, conns, err := m.snapshot()
	if err != nil {
		return err
	}

	toolCache := make(map[string][]protocol.Tool)
	resourceCache := make(map[string][]protocol.Resource)
	toolOwners := make(map[string]string)
	resourceOwners := make(map[string]string)

	for _, name := range order {
		cli := conns[name].Client()
		if cli == nil {
			continue
		}
		tools, err := cli.ListTools(ctx)
		if err != nil {
			m.logger.Warn("server %s: tool listing failed, skipping: %v", name, err)
		} else {
			toolCache[name] = tools
			for _, tool := range tools {
				if prev, ok := toolOwners[tool.Name]; ok {
					m.logger.Warn("tool %q from server %s overrides server %s", tool.Name, name, prev)
				}
				toolOwners[tool.Name] = name
			}
		}
		resources, err := cli.ListResources(ctx)
		if err != nil {
			m.logger.Warn("server %s: resource listing failed, skipping: %v", name, err)
		} else {
			resourceCache[name] = resources
			for _, res := range resources {
				if prev, ok := resourceOwners[res.URI]; ok {
					m.logger.Warn("resource %q from server %s overrides server %s", res.URI, name, prev)
				}
				resourceOwners[res.URI] = name
			}
		}
	}

	m.mu.Lock()
	m.toolCache = toolCache
	m.resourceCache = resourceCache
	m.toolOwners = toolOwners
	m.resourceOwners = resourceOwners
	m.mu.Unlock()
	m.logger.Debug("capability map rebuilt: %d tools, %d resources", len(toolOwners), len(resourceOwners))
	return nil
}

// RefreshTools re-queries every connected server's tool catalog and swaps the
// tool routing table. The resource table is untouched.
func (m *Manager) RefreshTools(ctx context.Context) error {
	order, conns, err := m.snapshot()
	if err != nil {
		return err
	}

	toolCache := make(map[string][]protocol.Tool)
	toolOwners := make(map[string]string)
	for _, name := range order {
		cli := conns[name].Client()
		if cli == nil {
			continue
		}
		tools, err := cli.ListTools(ctx)
		if err != nil {
			m.logger.Warn("server %s: tool listing failed, skipping: %v", name, err)
			continue
		}
		toolCache[name] = tools
		for _, tool := range tools {
			toolOwners[tool.Name] = name
		}
	}

	m.mu.Lock()
	m.toolCache = toolCache
	m.toolOwners = toolOwners
	m.mu.Unlock()
	return nil
}

// RefreshResources re-queries every connected server's resource catalog and
// swaps the resource routing table. The tool table is untouched.
func (m *Manager) RefreshResources(ctx context.Context) error {
	order, conns, err := m.snapshot()
	if err != nil {
		return err
	}

	resourceCache := make(map[string][]protocol.Resource)
	resourceOwners := make(map[string]string)
	for _, name := range order {
		cli := conns[name].Client()
		if cli == nil {
			continue
		}
		resources, err := cli.ListResources(ctx)
		if err != nil {
			m.logger.Warn("server %s: resource listing failed, skipping: %v", name, err)
			continue
		}
		resourceCache[name] = resources
		for _, res := range resources {
			resourceOwners[res.URI] = name
		}
	}

	m.mu.Lock()
	m.resourceCache = resourceCache
	m.resourceOwners = resourceOwners
	m.mu.Unlock()
	return nil
}

// CallTool routes the call to the server owning the named tool and returns
// the worker's result verbatim.
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	m.mu.RLock()
	if !m.initialized {
		m.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	owner, ok := m.toolOwners[name]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("tool %q: %w", name, ErrNotRegistered)
	}
	conn := m.conns[owner]
	m.mu.RUnlock()

	cli := conn.Client()
	if cli == nil {
		return nil, fmt.Errorf("tool %q owned by server %s: %w", name, owner, ErrNotConnected)
	}
	return cli.CallTool(ctx, name, args)
}

// ReadResource routes the read to the server owning the resource URI.
func (m *Manager) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	m.mu.RLock()
	if !m.initialized {
		m.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	owner, ok := m.resourceOwners[uri]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("resource %q: %w", uri, ErrNotRegistered)
	}
	conn := m.conns[owner]
	m.mu.RUnlock()

	cli := conn.Client()
	if cli == nil {
		return nil, fmt.Errorf("resource %q owned by server %s: %w", uri, owner, ErrNotConnected)
	}
	return cli.ReadResource(ctx, uri)
}

// DisconnectAll tears down every connection and clears all routing state.
// Teardown never fails; the manager can be initialized again afterwards.
// Idempotent.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*ServerConnection)
	m.order = nil
	m.toolCache = nil
	m.resourceCache = nil
	m.toolOwners = nil
	m.resourceOwners = nil
	m.initialized = false
	m.initErr = nil
	m.mu.Unlock()

	for _, conn := range conns {
		conn.shutdown()
	}
	if len(conns) > 0 {
		m.logger.Info("disconnected %d servers", len(conns))
	}
}

// snapshot returns the current server order and connection map for read-only
// iteration.
func (m *Manager) snapshot() ([]string, map[string]*ServerConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, nil, ErrNotInitialized
	}
	order := make([]string, len(m.order))
	copy(order, m.order)
	conns := make(map[string]*ServerConnection, len(m.conns))
	for name, conn := range m.conns {
		conns[name] = conn
	}
	return order, conns, nil
}
