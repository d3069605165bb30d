package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Stats mirrors search.Stats on the wire.
type Stats struct {
	NodesExplored int `json:"nodes_explored"`
	RemoteCalls   int `json:"remote_calls"`
	DepthReached  int `json:"depth_reached"`
	FailedFetches int `json:"failed_fetches"`
	FailedChunks  int `json:"failed_chunks"`
	CacheHits     int `json:"cache_hits"`
}
