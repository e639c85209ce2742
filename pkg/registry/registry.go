// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/max-tl-2000/red-sub014/internal/common/validation"
)

func LoadRegistry(path string) (*TopicRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TopicRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	for _, t := range reg.Topics {
		if err := validation.ValidateTopicNaming(t.Topic); err != nil {
			return nil, fmt.Errorf("registry entry %q: %w", t.ID, err)
		}
	}
	return &reg, nil
}

func SaveRegistry(path string, reg *TopicRegistry) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// FindByTopic returns the registry entry for a topic name, nil if absent.
func (r *TopicRegistry) FindByTopic(topic string) *Topic {
	for i := range r.Topics {
		if r.Topics[i].Topic == topic {
			return &r.Topics[i]
		}
	}
	return nil
}

// EnabledTopics lists the topic names workers should subscribe to.
func (r *TopicRegistry) EnabledTopics() []string {
	var out []string
	for _, t := range r.Topics {
		if t.Enabled {
			out = append(out, t.Topic)
		}
	}
	return out
}

// ValidateMessage checks an inbound payload against the topic's input schema.
// A topic with no schema accepts anything.
func (t *Topic) ValidateMessage(input map[string]interface{}) (*validation.ValidationResult, error) {
	if len(t.InputSchema) == 0 {
		return &validation.ValidationResult{Valid: true}, nil
	}
	schemaJSON, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, err
	}
	return validation.ValidateInput(input, string(schemaJSON))
}

// TimeoutDuration parses the configured timeout, defaulting to 30s.
func (t *Topic) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(t.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
