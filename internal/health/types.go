package health

import (
	"encoding/json"
	"time"
)

// HealthStatus represents the health state of an item.
type HealthStatus string

const (
	StatusOK      HealthStatus = "ok"
	StatusWarning HealthStatus = "warning"
	StatusError   HealthStatus = "error"
)

// HealthItem represents a single health-tracked item.
type HealthItem struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
}

// MarshalJSON omits message and timestamp for OK items.
func (h HealthItem) MarshalJSON() ([]byte, error) {
	type Alias HealthItem
	alias := Alias(h)

	if h.Status == StatusOK {
		alias.Timestamp = nil
		alias.Message = ""
	}

	return json.Marshal(alias)
}

// Report is the aggregate health response.
type Report struct {
	Status HealthStatus `json:"status"`
	Items  []HealthItem `json:"items"`
}
