package models

import "time"

// APIResponse is the uniform envelope for successful REST responses.
type APIResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// APIError is the envelope for REST error responses.
type APIError struct {
	Error string `json:"error"`
}

// HealthResponse is returned by the unauthenticated /health endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
