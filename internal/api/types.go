package api

import (
	"github.com/Atharv714/Safe-Passage/internal/model"
	"github.com/Atharv714/Safe-Passage/internal/value"
)

// Response status values.
const (
	StatusOK      = "ok"
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusError   = "error"
	StatusHealthy = "healthy"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	PublicAddr string `json:"public_addr,omitempty"`
	Events     int    `json:"events"`
	Capacity   int    `json:"capacity"`
}

// DataResponse echoes an accepted payload (POST /sensor, POST /location) or
// carries the latest sample (GET /sensor/last).
type DataResponse struct {
	Status    string      `json:"status"`
	Data      value.Value `json:"data"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// PotholeResponse is returned by POST /pothole.
type PotholeResponse struct {
	Status string `json:"status"`
	Stored bool   `json:"stored"`
	Count  int    `json:"count"`
	Seq    uint64 `json:"seq"`
}

// PotholesResponse is returned by GET /potholes.
type PotholesResponse struct {
	Status string        `json:"status"`
	Count  int           `json:"count"`
	Items  []model.Event `json:"items"`
}

// ErrorResponse is the body of every client or server error.
type ErrorResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}
