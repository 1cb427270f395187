package main

import "time"

// ServiceInfo is the response for GET /
type ServiceInfo struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Engine    string            `json:"engine"`
	MaxUpload int64             `json:"max_upload_bytes"`
	Endpoints map[string]string `json:"endpoints"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// InspectResponse describes an uploaded archive for POST /api/inspect
type InspectResponse struct {
	File    string   `json:"file"`
	Kind    string   `json:"kind"`
	Rule    string   `json:"rule,omitempty"`
	Entry   string   `json:"entry,omitempty"`
	Size    int      `json:"size,omitempty"`
	Entries []string `json:"entries"`
	Message string   `json:"message,omitempty"`
}

// ConversionDTO represents a recorded conversion in API responses
type ConversionDTO struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Inputs     []string  `json:"inputs"`
	Output     string    `json:"output,omitempty"`
	Result     string    `json:"result"`
	Kind       string    `json:"kind,omitempty"`
	Parts      int       `json:"parts,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListConversionsResponse is the response for GET /api/conversions
type ListConversionsResponse struct {
	Conversions []ConversionDTO `json:"conversions"`
	Count       int             `json:"count"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
