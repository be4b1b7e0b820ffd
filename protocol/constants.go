package protocol

const (
	// CurrentProtocolVersion defines the MCP version this implementation speaks.
	CurrentProtocolVersion = "2025-03-26"
	// OldProtocolVersion is an older version accepted for compatibility.
	OldProtocolVersion = "2024-11-05"

	// --- Method name constants ---
	// These align with the JSON-RPC 'method' field names from the MCP spec.

	// Initialization
	MethodInitialize        = "initialize"
	MethodNotifyInitialized = "notifications/initialized" // Notification

	// Tools
	MethodListTools              = "tools/list"
	MethodCallTool               = "tools/call"
	MethodNotifyToolsListChanged = "notifications/tools/list_changed" // Notification

	// Resources
	MethodListResources              = "resources/list"
	MethodReadResource               = "resources/read"
	MethodNotifyResourcesListChanged = "notifications/resources/list_changed" // Notification

	// Ping
	MethodPing = "ping"
)
