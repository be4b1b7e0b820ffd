package host

import "github.com/localrivet/mcphost/protocol"

// Status is the external summary of one server's condition.
type Status string

const (
	// StatusNoHostContext means the server name is unknown to the manager.
	StatusNoHostContext Status = "NO_HOST_CONTEXT"
	// StatusStarting means the server is spawning or connecting.
	StatusStarting Status = "STARTING"
	// StatusReady means the server is connected and routable.
	StatusReady Status = "READY"
	// StatusError means the server failed or was shut down.
	StatusError Status = "ERROR"
)

// Status reports the condition of the named server. Connections from a
// failed initialization stay registered so they keep reporting ERROR until
// DisconnectAll or a new Initialize replaces them.
func (m *Manager) Status(name string) Status {
	m.mu.RLock()
	conn, ok := m.conns[name]
	m.mu.RUnlock()
	if !ok {
		return StatusNoHostContext
	}
	switch conn.State() {
	case StateConnected:
		return StatusReady
	case StateIdle, StateStarting, StateAwaitingReady, StateConnecting:
		return StatusStarting
	default:
		return StatusError
	}
}

// OverallStatus reports the manager-wide condition: ERROR after a failed
// initialization, READY once initialized, STARTING while connections exist
// but initialization has not completed, NO_HOST_CONTEXT otherwise.
func (m *Manager) OverallStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.initErr != nil:
		return StatusError
	case m.initialized:
		return StatusReady
	case len(m.conns) > 0:
		return StatusStarting
	default:
		return StatusNoHostContext
	}
}

// ServerNames returns the configured server names in deterministic order.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Err returns the stored initialization error, if any.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initErr
}

// Tools returns every routable tool, aggregated across servers in
// deterministic server order.
func (m *Manager) Tools() []protocol.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tools []protocol.Tool
	for _, name := range m.order {
		tools = append(tools, m.toolCache[name]...)
	}
	return tools
}

// Resources returns every routable resource, aggregated across servers in
// deterministic server order.
func (m *Manager) Resources() []protocol.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var resources []protocol.Resource
	for _, name := range m.order {
		resources = append(resources, m.resourceCache[name]...)
	}
	return resources
}

// ToolOwners returns a copy of the tool routing table: tool name to owning
// server name.
func (m *Manager) ToolOwners() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owners := make(map[string]string, len(m.toolOwners))
	for tool, server := range m.toolOwners {
		owners[tool] = server
	}
	return owners
}

// ResourceOwners returns a copy of the resource routing table: resource URI
// to owning server name.
func (m *Manager) ResourceOwners() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owners := make(map[string]string, len(m.resourceOwners))
	for uri, server := range m.resourceOwners {
		owners[uri] = server
	}
	return owners
}
