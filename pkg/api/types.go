// Package api implements the HTTP management endpoint, the audit feed and
// the Prometheus metrics endpoint.
package api

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse reports that the controller is serving.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// HostEntry is a registered host controller.
type HostEntry struct {
	Name              string   `json:"name"`
	ProductVersion    string   `json:"product_version,omitempty"`
	ManagementVersion string   `json:"management_version"`
	ServerGroups      []string `json:"server_groups,omitempty"`
	RegisteredAt      string   `json:"registered_at"`
}

// AuditEntry is an executed operation from the audit log.
type AuditEntry struct {
	Time      string  `json:"time"`
	Operation string  `json:"operation"`
	Address   string  `json:"address"`
	Outcome   string  `json:"outcome"`
	Failure   string  `json:"failure,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms"`
}
