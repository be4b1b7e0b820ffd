package protocol

// --- Resource access structures ---

// Resource represents a piece of context available from a worker.
type Resource struct {
	URI         string `json:"uri"` // Unique identifier (e.g. "file:///path/to/file")
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesParams defines the parameters for a 'resources/list' request.
type ListResourcesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourcesResult defines the result payload for a 'resources/list'
// response.
type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ReadResourceParams defines the parameters for a 'resources/read' request.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContents holds one piece of resource content. Text carries textual
// content; Blob carries base64-encoded binary content.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResourceResult defines the result payload for a 'resources/read'
// response.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}
