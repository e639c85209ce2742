// pkg/registry/schema.go
package registry

// TopicRegistry is the catalog of inbound screening topics. It drives worker
// registration and message validation, and lives in configs/topics.json so
// operations can disable a topic without a rebuild.
type TopicRegistry struct {
	Version     string  `json:"version"`
	LastUpdated string  `json:"lastUpdated"`
	Topics      []Topic `json:"topics"`
}

type Topic struct {
	ID            string                 `json:"id"`
	DisplayName   string                 `json:"displayName"`
	Description   string                 `json:"description"`
	Category      string                 `json:"category"`
	Topic         string                 `json:"topic"`
	Enabled       bool                   `json:"enabled"`
	InputSchema   map[string]interface{} `json:"inputSchema"`
	ErrorCodes    []string               `json:"errorCodes,omitempty"`
	Timeout       string                 `json:"timeout"`
	MaxJobsActive int                    `json:"maxJobsActive"`
	Tags          []string               `json:"tags,omitempty"`
}
