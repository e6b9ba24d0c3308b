package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Model     string `json:"model,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EndpointInfo documents one route in the service descriptor.
type EndpointInfo struct {
	Description string            `json:"description"`
	Accepts     string            `json:"accepts,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Returns     string            `json:"returns"`
}

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Service       string                  `json:"service"`
	Version       string                  `json:"version"`
	Status        string                  `json:"status"`
	Endpoints     map[string]EndpointInfo `json:"endpoints"`
	Documentation string                  `json:"documentation"`
	Timestamp     string                  `json:"timestamp"`
}
